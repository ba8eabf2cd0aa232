package notify

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/robotnikz/sunflow/pkg/log"
	"github.com/robotnikz/sunflow/pkg/types"
)

// sohCheckInterval is how often the heavy battery health query may run.
const sohCheckInterval = 24 * time.Hour

// Notifier turns polled samples into alerts. Battery alerts use hysteresis:
// the full alert re-arms only after SOC drops below 95 and the low alert
// only after it recovers above 15, so a battery hovering at a threshold
// cannot spam the webhook.
type Notifier struct {
	sender Sender
	clk    clock.Clock

	mu           sync.Mutex
	prevStatus   types.InverterStatus
	notifiedFull bool
	notifiedLow  bool
	lastSOHCheck time.Time
}

func New(sender Sender, clk clock.Clock) *Notifier {
	return &Notifier{
		sender:     sender,
		clk:        clk,
		prevStatus: types.StatusNormal,
	}
}

// Evaluate inspects one polled sample and fires the configured alerts.
// Errors from the webhook are logged, never propagated: a broken webhook
// must not take down the polling loop.
func (n *Notifier) Evaluate(ctx context.Context, cfg types.NotificationSettings, sample types.PowerSample) {
	if cfg.WebhookURL == "" {
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if cfg.NotifyOnError && sample.Status == types.StatusError && n.prevStatus != types.StatusError {
		n.send(ctx, cfg, Embed{
			Title:       "Inverter Error",
			Description: "The inverter is reporting an error state.",
			Color:       ColorError,
		})
	}
	n.prevStatus = sample.Status

	if cfg.NotifyOnFull {
		if sample.SOC == 100 && !n.notifiedFull {
			n.send(ctx, cfg, Embed{
				Title:       "Battery Full",
				Description: "Storage has reached 100% capacity.",
				Color:       ColorGood,
			})
			n.notifiedFull = true
		} else if sample.SOC < 95 {
			n.notifiedFull = false
		}
	}

	if cfg.NotifyOnLow {
		if sample.SOC <= 7 && !n.notifiedLow {
			n.send(ctx, cfg, Embed{
				Title:       "Battery Low",
				Description: fmt.Sprintf("Storage level dropped to %d%%.", int(math.Round(sample.SOC))),
				Color:       ColorWarn,
			})
			n.notifiedLow = true
		} else if sample.SOC > 15 {
			n.notifiedLow = false
		}
	}
}

// SOHCheckDue reports whether the expensive state-of-health query should
// run now, and arms the interval if so.
func (n *Notifier) SOHCheckDue(cfg types.NotificationSettings) bool {
	if cfg.WebhookURL == "" || !cfg.NotifyOnSOH {
		return false
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	now := n.clk.Now()
	if now.Sub(n.lastSOHCheck) < sohCheckInterval {
		return false
	}
	n.lastSOHCheck = now
	return true
}

// EvaluateSOH fires the degradation alert when the battery has seen enough
// cycles for the estimate to mean something and the state of health sits
// under the configured threshold.
func (n *Notifier) EvaluateSOH(ctx context.Context, cfg types.NotificationSettings, report types.BatteryHealthReport) {
	if cfg.WebhookURL == "" {
		return
	}
	if report.StateOfHealthPercent <= 0 || report.TotalCycles <= cfg.SOHMinCycles {
		return
	}
	if report.StateOfHealthPercent >= cfg.SOHThreshold {
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.send(ctx, cfg, Embed{
		Title:       "Battery Health Degraded",
		Description: fmt.Sprintf("Estimated state of health is %.1f%%, below the %.0f%% threshold.", report.StateOfHealthPercent, cfg.SOHThreshold),
		Color:       ColorError,
		Fields: []EmbedField{
			{Name: "Estimated capacity", Value: fmt.Sprintf("%.2f kWh", report.LatestCapacityKWH), Inline: true},
			{Name: "Total cycles", Value: fmt.Sprintf("%d", report.TotalCycles), Inline: true},
		},
	})
}

func (n *Notifier) send(ctx context.Context, cfg types.NotificationSettings, embed Embed) {
	if err := n.sender.Send(ctx, cfg.WebhookURL, embed); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to send notification", "title", embed.Title, "error", err)
	}
}
