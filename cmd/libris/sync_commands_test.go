package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"libris/internal/notifications"
	"libris/internal/requests"
)

type stubNotifier struct {
	notifications.Service
	calls int
	err   error
}

func (n *stubNotifier) NotifyDeliveryTerminal(context.Context, string, string) error {
	n.calls++
	return n.err
}

func TestReportSyncPassWarnsOnNotificationFailure(t *testing.T) {
	notifier := &stubNotifier{err: errors.New("ntfy unreachable")}
	s := &stores{notifier: notifier}

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)

	changed := []*requests.Request{
		{ID: 1, DeliveryState: requests.DeliveryComplete, BookData: json.RawMessage(`{"title":"Dune"}`)},
		{ID: 2, DeliveryState: requests.DeliveryDownloading, BookData: json.RawMessage(`{"title":"Hyperion"}`)},
	}
	reportSyncPass(cmd, s, changed)

	if notifier.calls != 1 {
		t.Fatalf("expected one notification for the terminal row, got %d", notifier.calls)
	}
	if !strings.Contains(out.String(), "Request 1 delivery is now complete") {
		t.Fatalf("expected state change reported on stdout, got %q", out.String())
	}
	if !strings.Contains(errOut.String(), "notification not delivered") {
		t.Fatalf("expected warning on the command's error stream, got %q", errOut.String())
	}
	if strings.Contains(out.String(), "notification not delivered") {
		t.Fatalf("expected warning kept off stdout, got %q", out.String())
	}
}

func TestNotifyTerminalChangeSkipsActiveDeliveries(t *testing.T) {
	notifier := &stubNotifier{}
	s := &stores{notifier: notifier}

	row := &requests.Request{ID: 3, DeliveryState: requests.DeliveryQueued}
	if err := notifyTerminalChange(context.Background(), s, row); err != nil {
		t.Fatalf("expected nil for non-terminal delivery, got %v", err)
	}
	if notifier.calls != 0 {
		t.Fatalf("expected no notification for non-terminal delivery, got %d", notifier.calls)
	}
}
