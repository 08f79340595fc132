package webhook

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/antoniostano/waply/internal/observability"
	"github.com/antoniostano/waply/internal/store"
	"github.com/antoniostano/waply/internal/whatsapp"
)

// Outcome classifies how an event was handled. Every outcome maps to a
// success acknowledgment upstream; the platform retries anything else,
// and a retried event must never produce a second reply.
type Outcome string

const (
	OutcomeReplied     Outcome = "replied"
	OutcomeNoMessage   Outcome = "no_message"
	OutcomeDuplicate   Outcome = "duplicate"
	OutcomeRateLimited Outcome = "rate_limited"
	OutcomeUnsupported Outcome = "unsupported"
	OutcomeSendFailed  Outcome = "send_failed"
	OutcomeFailed      Outcome = "failed"
)

// Result is the terminal state of one event's pipeline run. Err is set
// for OutcomeSendFailed and OutcomeFailed; it is logged, never surfaced
// to the platform.
type Result struct {
	Outcome Outcome
	Err     error
}

// RateLimiter is the per-sender sliding window limiter.
type RateLimiter interface {
	Allow(key string, limit int, window time.Duration) bool
}

// Generator produces one reply from history and new input.
type Generator interface {
	Generate(ctx context.Context, history []store.TurnRecord, userInput string) (string, error)
}

// Sender delivers a text reply to a recipient.
type Sender interface {
	SendText(ctx context.Context, to, text string) error
}

const (
	senderKeyPrefix = "wa:"
	historyLimit    = 10
	rateWindow      = time.Minute
)

// Processor runs the event pipeline: dedup check, rate limit, mark,
// history fetch, generation, persistence, outbound send.
type Processor struct {
	store     store.Store
	limiter   RateLimiter
	generator Generator
	sender    Sender
	metrics   *observability.Metrics
	rateLimit int
}

func NewProcessor(st store.Store, limiter RateLimiter, generator Generator, sender Sender, metrics *observability.Metrics, rateLimitPerMinute int) *Processor {
	return &Processor{
		store:     st,
		limiter:   limiter,
		generator: generator,
		sender:    sender,
		metrics:   metrics,
		rateLimit: rateLimitPerMinute,
	}
}

// Process takes a parsed event to a terminal outcome. The event is
// marked processed before any reply is generated or sent: a crash after
// the mark loses that reply rather than risking a duplicate send on the
// platform's redelivery.
func (p *Processor) Process(ctx context.Context, event InboundEvent) Result {
	res := p.process(ctx, event)
	p.metrics.WebhookEvents.WithLabelValues(string(res.Outcome)).Inc()
	if res.Err != nil {
		log.Printf("webhook event=%s outcome=%s err=%v", event.EventID, res.Outcome, res.Err)
	}
	return res
}

func (p *Processor) process(ctx context.Context, event InboundEvent) Result {
	seen, err := p.store.SeenEvent(ctx, event.EventID)
	if err != nil {
		return Result{Outcome: OutcomeFailed, Err: err}
	}
	if seen {
		return Result{Outcome: OutcomeDuplicate}
	}

	userKey := senderKeyPrefix + event.SenderID

	if !p.limiter.Allow(userKey, p.rateLimit, rateWindow) {
		log.Printf("rate limit: key=%s blocked (limit=%d/min) event=%s", userKey, p.rateLimit, event.EventID)
		// Mark so the platform's retries of this event stay suppressed too.
		if _, err := p.store.MarkEvent(ctx, event.EventID); err != nil {
			return Result{Outcome: OutcomeFailed, Err: err}
		}
		return Result{Outcome: OutcomeRateLimited}
	}

	// Terminal idempotency commitment point. The unique-constraint
	// insert arbitrates concurrent deliveries of the same event id.
	inserted, err := p.store.MarkEvent(ctx, event.EventID)
	if err != nil {
		return Result{Outcome: OutcomeFailed, Err: err}
	}
	if !inserted {
		return Result{Outcome: OutcomeDuplicate}
	}

	if event.MessageType != "text" {
		return Result{Outcome: OutcomeUnsupported}
	}

	history, err := p.store.RecentTurns(ctx, userKey, historyLimit)
	if err != nil {
		return Result{Outcome: OutcomeFailed, Err: err}
	}

	start := time.Now()
	replyText, err := p.generator.Generate(ctx, history, event.Text)
	if err != nil {
		return Result{Outcome: OutcomeFailed, Err: err}
	}
	p.metrics.ObserveGenerationLatency(time.Since(start))

	if err := p.store.SaveTurn(ctx, store.TurnRecord{UserKey: userKey, Role: store.RoleUser, Content: event.Text}); err != nil {
		return Result{Outcome: OutcomeFailed, Err: err}
	}
	if err := p.store.SaveTurn(ctx, store.TurnRecord{UserKey: userKey, Role: store.RoleAssistant, Content: replyText}); err != nil {
		return Result{Outcome: OutcomeFailed, Err: err}
	}

	if err := p.sender.SendText(ctx, event.SenderID, replyText); err != nil {
		var apiErr *whatsapp.APIError
		if errors.As(err, &apiErr) {
			p.metrics.SendFailures.Inc()
		}
		return Result{Outcome: OutcomeSendFailed, Err: err}
	}

	return Result{Outcome: OutcomeReplied}
}
