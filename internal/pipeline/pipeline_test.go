package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dolwer/mailsheet/internal/analysis"
	"github.com/dolwer/mailsheet/internal/mailbox"
	"github.com/dolwer/mailsheet/internal/stats"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeMailer struct {
	threads    []mailbox.Thread
	markedSeen []uint32
	markErr    error
}

func (f *fakeMailer) Threads(context.Context) []mailbox.Thread { return f.threads }

func (f *fakeMailer) MarkSeen(_ context.Context, msg mailbox.Message) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.markedSeen = append(f.markedSeen, msg.UID)
	return nil
}

type fakeAnalyzer struct {
	// results maps message body to the outcome for that body.
	results map[string]analysis.Result
	errs    map[string]error
	healthy bool
}

func (f *fakeAnalyzer) AnalyzeEmail(_ context.Context, body, _ string) (analysis.Result, error) {
	if err, ok := f.errs[body]; ok {
		return nil, err
	}
	return f.results[body], nil
}

func (f *fakeAnalyzer) HealthCheck(context.Context) bool { return f.healthy }

type fakeSheet struct {
	updates map[string]map[string]string
	err     error
}

func (f *fakeSheet) Update(email string, result map[string]string) error {
	if f.err != nil {
		return f.err
	}
	if f.updates == nil {
		f.updates = make(map[string]map[string]string)
	}
	f.updates[email] = result
	return nil
}

func twoThreads() []mailbox.Thread {
	return []mailbox.Thread{
		{
			Sent: mailbox.Message{MessageID: "<s1@x>", Subject: "offer one"},
			Replies: []mailbox.Message{
				{UID: 11, From: "alice@example.com", Body: "reply one"},
			},
		},
		{
			Sent: mailbox.Message{MessageID: "<s2@x>", Subject: "offer two"},
			Replies: []mailbox.Message{
				{UID: 22, From: "bob@example.com", Body: "reply two"},
			},
		},
	}
}

func TestRunSkipsLogicalAnalysisFailures(t *testing.T) {
	mail := &fakeMailer{threads: twoThreads()}
	analyzer := &fakeAnalyzer{
		healthy: true,
		errs: map[string]error{
			"reply one": &analysis.Error{Message: "model unavailable"},
		},
		results: map[string]analysis.Result{
			"reply two": {"status": "interested"},
		},
	}
	sheet := &fakeSheet{}
	st := &stats.Stats{}

	p := New(mail, analyzer, sheet, st, discardLogger())
	require.NoError(t, p.Run(context.Background()))

	// First message skipped: not marked read, no stats movement.
	assert.NotContains(t, mail.markedSeen, uint32(11))
	assert.NotContains(t, sheet.updates, "alice@example.com")

	// Second message processed end to end.
	assert.Contains(t, mail.markedSeen, uint32(22))
	assert.Equal(t, map[string]string{"status": "interested"}, sheet.updates["bob@example.com"])

	assert.Equal(t, 1, st.ProcessedEmails)
	assert.Equal(t, 0, st.Errors)
}

func TestRunCountsTransportFailures(t *testing.T) {
	mail := &fakeMailer{threads: twoThreads()}
	analyzer := &fakeAnalyzer{
		healthy: true,
		errs: map[string]error{
			"reply one": errors.New("connection refused"),
		},
		results: map[string]analysis.Result{
			"reply two": {"status": "interested"},
		},
	}
	sheet := &fakeSheet{}
	st := &stats.Stats{}

	p := New(mail, analyzer, sheet, st, discardLogger())
	require.NoError(t, p.Run(context.Background()))

	assert.Equal(t, 1, st.Errors)
	assert.Equal(t, 1, st.ProcessedEmails)
	assert.NotContains(t, mail.markedSeen, uint32(11))
}

func TestRunSkipsProcessedMessages(t *testing.T) {
	threads := twoThreads()
	threads[0].Replies[0].Processed = true

	mail := &fakeMailer{threads: threads}
	analyzer := &fakeAnalyzer{
		healthy: true,
		results: map[string]analysis.Result{
			"reply two": {"status": "interested"},
		},
	}
	sheet := &fakeSheet{}
	st := &stats.Stats{}

	p := New(mail, analyzer, sheet, st, discardLogger())
	require.NoError(t, p.Run(context.Background()))

	assert.NotContains(t, sheet.updates, "alice@example.com")
	assert.Equal(t, 1, st.ProcessedEmails)
}

func TestRunAbortsOnSheetFailure(t *testing.T) {
	mail := &fakeMailer{threads: twoThreads()}
	analyzer := &fakeAnalyzer{
		healthy: true,
		results: map[string]analysis.Result{
			"reply one": {"status": "interested"},
			"reply two": {"status": "interested"},
		},
	}
	sheet := &fakeSheet{err: errors.New("column mapping broken")}
	st := &stats.Stats{}

	p := New(mail, analyzer, sheet, st, discardLogger())
	err := p.Run(context.Background())
	require.Error(t, err)

	// The run stops at the first failure; nothing is marked read.
	assert.Empty(t, mail.markedSeen)
	assert.Equal(t, 0, st.ProcessedEmails)
}

func TestRunProceedsWhenUnhealthy(t *testing.T) {
	mail := &fakeMailer{threads: nil}
	analyzer := &fakeAnalyzer{healthy: false}

	p := New(mail, analyzer, &fakeSheet{}, &stats.Stats{}, discardLogger())
	require.NoError(t, p.Run(context.Background()))
}
