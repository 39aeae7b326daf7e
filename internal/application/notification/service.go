package notification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/dishdash-auth/internal/domain"
	"github.com/dishdash-auth/internal/infrastructure/smtp"
)

const (
	Subject      = "Your OTP Password"
	bodyTemplate = "Your OTP password is %s"
)

// Message is one OTP delivery request.
type Message struct {
	Channel     domain.Channel
	Destination string
	Code        string
}

// Body renders the text delivered to the user.
func (m Message) Body() string {
	return fmt.Sprintf(bodyTemplate, m.Code)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message) error
}

type mailer interface {
	SendEmail(ctx context.Context, msg smtp.Message) error
}

type smsSender interface {
	SendSMS(ctx context.Context, from, to, body string) error
}

type dispatcher struct {
	mailer       mailer
	sms          smsSender
	emailFrom    string
	smsFrom      string
	timeout      time.Duration
	maxAttempts  uint
	initialDelay time.Duration
}

type DispatcherDeps struct {
	Mailer      mailer
	SMSSender   smsSender
	EmailFrom   string
	SMSFrom     string
	Timeout     time.Duration
	MaxAttempts uint
	// InitialDelay is the first backoff interval; zero keeps the library default.
	InitialDelay time.Duration
}

func NewDispatcher(deps DispatcherDeps) Dispatcher {
	if deps.MaxAttempts == 0 {
		deps.MaxAttempts = 1
	}
	return &dispatcher{
		mailer:       deps.Mailer,
		sms:          deps.SMSSender,
		emailFrom:    deps.EmailFrom,
		smsFrom:      deps.SMSFrom,
		timeout:      deps.Timeout,
		maxAttempts:  deps.MaxAttempts,
		initialDelay: deps.InitialDelay,
	}
}

// Dispatch delivers msg over its channel. The attempt runs detached from the
// caller's cancellation but bounded by the dispatcher timeout, and transient
// failures are retried with exponential backoff.
func (d *dispatcher) Dispatch(ctx context.Context, msg Message) error {
	send, err := d.route(msg)
	if err != nil {
		return err
	}

	ctx = context.WithoutCancel(ctx)
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	b := backoff.NewExponentialBackOff()
	if d.initialDelay > 0 {
		b.InitialInterval = d.initialDelay
	}
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, send(ctx)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(d.maxAttempts))
	if err != nil {
		return fmt.Errorf("deliver %s otp: %v: %w", msg.Channel, err, domain.ErrDependency)
	}
	return nil
}

func (d *dispatcher) route(msg Message) (func(context.Context) error, error) {
	switch msg.Channel {
	case domain.ChannelEmail:
		if d.mailer == nil {
			return nil, fmt.Errorf("email transport not configured: %w", domain.ErrDependency)
		}
		email := smtp.Message{Subject: Subject, Body: msg.Body(), From: d.emailFrom, To: []string{msg.Destination}}
		return func(ctx context.Context) error { return d.mailer.SendEmail(ctx, email) }, nil
	case domain.ChannelSMS:
		if d.sms == nil {
			return nil, fmt.Errorf("sms transport not configured: %w", domain.ErrDependency)
		}
		body := msg.Body()
		return func(ctx context.Context) error { return d.sms.SendSMS(ctx, d.smsFrom, msg.Destination, body) }, nil
	default:
		return nil, fmt.Errorf("unknown channel %q: %w", msg.Channel, domain.ErrBadRequest)
	}
}

// MaskDestination hides most of an email local part or phone number so it
// can be logged.
func MaskDestination(dest string) string {
	if local, host, ok := strings.Cut(dest, "@"); ok {
		if len(local) <= 1 {
			return "*@" + host
		}
		return local[:1] + strings.Repeat("*", len(local)-1) + "@" + host
	}
	if len(dest) <= 4 {
		return strings.Repeat("*", len(dest))
	}
	return strings.Repeat("*", len(dest)-4) + dest[len(dest)-4:]
}
