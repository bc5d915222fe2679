package notify

import (
	"context"
	"fmt"
	"io"
	stdlog "log"
	"slices"
	"strings"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/guianderson/terrama2/internal/analysis"
	"github.com/guianderson/terrama2/internal/errors"
	"github.com/guianderson/terrama2/internal/logger"
)

// Sender delivers one message to every configured service.
type Sender interface {
	Send(message string, params *stypes.Params) []error
}

// Notifier sends a short text per finished run through shoutrrr services.
type Notifier struct {
	sender     Sender
	name       string
	onlyFailed bool
	log        logger.Logger
}

// NewShoutrrrNotifier builds a sender for urls. Service URLs carry
// credentials, so errors never echo them.
func NewShoutrrrNotifier(name string, urls []string, onlyFailed bool, timeout time.Duration, log logger.Logger) (*Notifier, error) {
	if len(urls) == 0 {
		return nil, errors.Newf("at least one notification URL is required").Category(errors.CategoryValidation).Build()
	}
	sender, err := shoutrrr.CreateSender(slices.Clone(urls)...)
	if err != nil {
		return nil, errors.Newf("invalid notification service URL: %s", redactURLs(err.Error(), urls)).
			Category(errors.CategoryValidation).
			Build()
	}
	if timeout > 0 {
		sender.Timeout = timeout
	}
	sender.SetLogger(stdlog.New(io.Discard, "", 0))
	return NewNotifier(sender, name, onlyFailed, log), nil
}

// NewNotifier wraps an existing Sender.
func NewNotifier(sender Sender, name string, onlyFailed bool, log logger.Logger) *Notifier {
	if strings.TrimSpace(name) == "" {
		name = "terrama2"
	}
	return &Notifier{sender: sender, name: name, onlyFailed: onlyFailed, log: log.Module("notify")}
}

// RunFinished implements analysis.Observer.
func (n *Notifier) RunFinished(_ context.Context, rec analysis.RunRecord) {
	if n.onlyFailed && rec.Status == analysis.StatusSuccess {
		return
	}
	params := stypes.Params{}
	params.SetTitle(n.title(rec))

	for _, err := range n.sender.Send(n.message(rec), &params) {
		if err != nil {
			n.log.Warn("failed to send run notification",
				logger.Int64("analysis_id", rec.AnalysisID),
				logger.String("category", string(errors.CategoryIntegration)),
				logger.Error(err))
		}
	}
}

func (n *Notifier) title(rec analysis.RunRecord) string {
	label := rec.AnalysisName
	if label == "" {
		label = fmt.Sprintf("analysis %d", rec.AnalysisID)
	}
	if rec.Status == analysis.StatusSuccess {
		return fmt.Sprintf("[%s] %s completed", n.name, label)
	}
	return fmt.Sprintf("[%s] %s failed", n.name, label)
}

func (n *Notifier) message(rec analysis.RunRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analysis %d, reference %s, execution %s\n",
		rec.AnalysisID, rec.Reference.UTC().Format(time.RFC3339), rec.ExecutionID)
	fmt.Fprintf(&b, "Rows %d, written %d, took %s\n", rec.Rows, rec.Written, rec.Duration().Round(time.Millisecond))
	if rec.Status != analysis.StatusSuccess {
		fmt.Fprintf(&b, "Error (%s): %s\n", rec.Category, rec.Message)
	}
	return b.String()
}

func redactURLs(msg string, urls []string) string {
	for _, u := range urls {
		if u != "" {
			msg = strings.ReplaceAll(msg, u, "[redacted]")
		}
	}
	return msg
}
