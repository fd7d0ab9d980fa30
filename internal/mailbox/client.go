// Package mailbox reads sent threads and their replies from an IMAP
// mailbox and marks processed messages as read.
package mailbox

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/dolwer/mailsheet/internal/config"
	"github.com/dolwer/mailsheet/internal/retry"
	"github.com/dolwer/mailsheet/internal/stats"
)

// Client holds one authenticated IMAP session. Lifecycle: Connect,
// any number of fetch/store operations, Disconnect. Disconnect must
// be attempted by the caller even after errors.
type Client struct {
	host     string
	port     int
	username string
	password string
	folder   string

	stats  *stats.Stats
	logger *slog.Logger

	conn *imapclient.Client
}

// NewClient creates an unconnected mailbox client.
func NewClient(cfg config.IMAPConfig, st *stats.Stats, logger *slog.Logger) *Client {
	return &Client{
		host:     cfg.Host,
		port:     cfg.Port,
		username: cfg.Username,
		password: cfg.Password,
		folder:   cfg.Folder,
		stats:    st,
		logger:   logger,
	}
}

// Connect dials the server over TLS (retrying transient dial
// failures) and authenticates.
func (c *Client) Connect(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", c.host, c.port)

	var conn *imapclient.Client
	err := retry.Do(ctx, retry.DefaultPolicy(), c.logger, nil, func() error {
		var dialErr error
		conn, dialErr = imapclient.DialTLS(addr, nil)
		return dialErr
	})
	if err != nil {
		return fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	if err := conn.Login(c.username, c.password).Wait(); err != nil {
		_ = conn.Logout().Wait()
		return fmt.Errorf("IMAP login failed for %s: %w", c.username, err)
	}

	c.conn = conn
	c.logger.Info("connected to IMAP server", "host", c.host)
	return nil
}

// Disconnect logs out of the session. Failures are logged, not
// returned.
func (c *Client) Disconnect() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Logout().Wait(); err != nil {
		c.logger.Error("IMAP logout failed", "error", err)
	} else {
		c.logger.Info("disconnected from IMAP server")
	}
	c.conn = nil
}

// sentFolder picks the provider's sent-items mailbox name from the
// host string.
func (c *Client) sentFolder() string {
	if strings.Contains(strings.ToLower(c.host), "gmail") {
		return "[Gmail]/Sent Mail"
	}
	return "Sent"
}

// FetchSentEmails lists every message in the sent-items folder. A
// failure of the whole operation is logged and counted, and an empty
// slice is returned rather than an error, so one bad folder does not
// end the run.
func (c *Client) FetchSentEmails(ctx context.Context) []Message {
	folder := c.sentFolder()
	msgs, err := c.fetchFolder(ctx, folder, &imap.SearchCriteria{})
	if err != nil {
		c.logger.Error("fetching sent emails failed", "folder", folder, "error", err)
		c.stats.Errors++
		return nil
	}
	c.logger.Info("fetched sent emails", "count", len(msgs))
	return msgs
}

// FetchReplies lists messages in the configured folder whose
// References header carries the sent message's message-id. Same
// failure policy as FetchSentEmails.
func (c *Client) FetchReplies(ctx context.Context, sent Message) []Message {
	criteria := &imap.SearchCriteria{
		Header: []imap.SearchCriteriaHeaderField{
			{Key: "References", Value: sent.MessageID},
		},
	}
	msgs, err := c.fetchFolder(ctx, c.folder, criteria)
	if err != nil {
		c.logger.Error("fetching replies failed",
			"message_id", sent.MessageID, "error", err)
		c.stats.Errors++
		return nil
	}
	c.logger.Info("found replies", "message_id", sent.MessageID, "count", len(msgs))
	return msgs
}

// Threads correlates sent messages with their replies.
func (c *Client) Threads(ctx context.Context) []Thread {
	return threadsFrom(c.FetchSentEmails(ctx), func(sent Message) []Message {
		return c.FetchReplies(ctx, sent)
	})
}

// threadsFrom builds threads for every sent message that carries a
// message-id; without one, replies cannot reference it.
func threadsFrom(sent []Message, replies func(Message) []Message) []Thread {
	var threads []Thread
	for _, s := range sent {
		if s.MessageID == "" {
			continue
		}
		threads = append(threads, Thread{
			Sent:    s,
			Replies: replies(s),
			Context: threadContext(s),
		})
	}
	return threads
}

// MarkSeen sets the \Seen flag on the message's folder/UID.
func (c *Client) MarkSeen(ctx context.Context, msg Message) error {
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	if _, err := c.conn.Select(msg.Folder, nil).Wait(); err != nil {
		return fmt.Errorf("selecting %s: %w", msg.Folder, err)
	}

	uidSet := imap.UIDSetNum(imap.UID(msg.UID))
	storeCmd := c.conn.Store(uidSet, &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}, nil)
	if err := storeCmd.Close(); err != nil {
		return fmt.Errorf("marking UID %d seen: %w", msg.UID, err)
	}
	return nil
}

// fetchFolder selects a folder, searches with the given criteria, and
// fetches every matching message with envelope, flags, and body.
func (c *Client) fetchFolder(
	ctx context.Context,
	folder string,
	criteria *imap.SearchCriteria,
) ([]Message, error) {
	if c.conn == nil {
		return nil, fmt.Errorf("not connected")
	}

	if _, err := c.conn.Select(folder, nil).Wait(); err != nil {
		return nil, fmt.Errorf("selecting %s: %w", folder, err)
	}

	searchData, err := c.conn.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", folder, err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchOpts := &imap.FetchOptions{
		Envelope:    true,
		Flags:       true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := c.conn.Fetch(imap.UIDSetNum(uids...), fetchOpts)
	defer fetchCmd.Close()

	var msgs []Message
	for {
		raw := fetchCmd.Next()
		if raw == nil {
			break
		}

		buf, err := raw.Collect()
		if err != nil {
			c.logger.Error("collecting message failed", "folder", folder, "error", err)
			c.stats.Errors++
			continue
		}

		msgs = append(msgs, c.parseMessage(buf, folder, bodySection))
	}

	if err := fetchCmd.Close(); err != nil {
		return msgs, fmt.Errorf("fetching from %s: %w", folder, err)
	}
	return msgs, nil
}

// parseMessage turns a fetch buffer into a Message. A body that fails
// to parse is logged and counted, and the message keeps an empty body.
func (c *Client) parseMessage(
	buf *imapclient.FetchMessageBuffer,
	folder string,
	bodySection *imap.FetchItemBodySection,
) Message {
	msg := Message{
		UID:    uint32(buf.UID),
		Folder: folder,
	}

	if buf.Envelope != nil {
		msg.Subject = buf.Envelope.Subject
		msg.MessageID = buf.Envelope.MessageID
		if len(buf.Envelope.From) > 0 {
			msg.From = buf.Envelope.From[0].Addr()
		}
		if len(buf.Envelope.To) > 0 {
			msg.To = buf.Envelope.To[0].Addr()
		}
	}

	for _, flag := range buf.Flags {
		if flag == imap.FlagSeen {
			msg.Processed = true
		}
	}

	if raw := buf.FindBodySection(bodySection); raw != nil {
		body, err := extractBody(raw)
		if err != nil {
			c.logger.Error("extracting message body failed",
				"uid", msg.UID, "error", err)
			c.stats.Errors++
		} else {
			msg.Body = body
		}
	}

	return msg
}

// threadContext summarizes a thread for the analysis prompt.
func threadContext(sent Message) string {
	return fmt.Sprintf("Subject: %s; sent from %s to %s", sent.Subject, sent.From, sent.To)
}
