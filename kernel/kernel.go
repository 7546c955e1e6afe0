// Package kernel implements the turn orchestrator that composes agent, tools,
// session, and notifier into one conversational turn per inbound message.
//
// The kernel initializes from configuration via New, creating any subsystem
// not supplied through an option.
//
//	k, err := kernel.New(ctx, &cfg, kernel.WithNotifier(gw))
//	result, err := k.HandleMessage(ctx, kernel.Inbound{From: "15551234@c.us", Body: "hi"})
package kernel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/tailored-agentic-units/chainspeak/agent"
	"github.com/tailored-agentic-units/chainspeak/core/protocol"
	"github.com/tailored-agentic-units/chainspeak/notify"
	"github.com/tailored-agentic-units/chainspeak/observability"
	"github.com/tailored-agentic-units/chainspeak/session"
	"github.com/tailored-agentic-units/chainspeak/store"
	"github.com/tailored-agentic-units/chainspeak/tools"
	"github.com/tailored-agentic-units/chainspeak/tools/builtin"
)

// State is a turn's position in the orchestration state machine.
type State int

const (
	StateAwaitingFirstResponse State = iota
	StateToolRequested
	StateAwaitingSecondResponse
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAwaitingFirstResponse:
		return "awaiting_first_response"
	case StateToolRequested:
		return "tool_requested"
	case StateAwaitingSecondResponse:
		return "awaiting_second_response"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Inbound is one chat message from a user.
type Inbound struct {
	From string `json:"from"`
	Body string `json:"body"`
}

// ToolCallRecord is the tool invocation executed during a turn.
type ToolCallRecord struct {
	protocol.ToolCall
	Result tools.Result
}

// Result holds the outcome of a HandleMessage invocation.
type Result struct {
	TurnID       string
	UserID       string
	Reply        string          // Final text sent to the user; empty when the model said nothing.
	State        State           // StateDone or StateFailed once the turn returns.
	ToolCall     *ToolCallRecord // Nil when no tool was requested.
	DroppedCalls int             // Tool calls requested beyond the first.
	Delivered    bool            // Whether the reply reached the notifier.
}

// Option configures a Kernel before config-driven initialization fills in
// whatever the options left unset.
type Option func(*Kernel)

// WithAgent overrides the config-created agent.
func WithAgent(a agent.Agent) Option {
	return func(k *Kernel) { k.agent = a }
}

// WithStore overrides the config-created store. The caller keeps ownership.
func WithStore(s *store.Store) Option {
	return func(k *Kernel) { k.store = s }
}

// WithRegistry overrides the builtin tool registry.
func WithRegistry(r *tools.Registry) Option {
	return func(k *Kernel) { k.tools = r }
}

// WithNotifier sets the outbound notifier. Required.
func WithNotifier(n notify.Notifier) Option {
	return func(k *Kernel) { k.notifier = n }
}

// WithObserver overrides the config-selected observer.
func WithObserver(o observability.Observer) Option {
	return func(k *Kernel) { k.observer = o }
}

// WithLogger sets the logger handed to every subsystem.
func WithLogger(l *slog.Logger) Option {
	return func(k *Kernel) { k.logger = l }
}

// Kernel runs conversational turns.
type Kernel struct {
	agent     agent.Agent
	store     *store.Store
	ownsStore bool
	tools     *tools.Registry
	sessions  *session.Manager
	notifier  notify.Notifier
	observer  observability.Observer
	logger    *slog.Logger

	domain       string
	systemPrompt string
	apology      string
}

// New creates a Kernel from configuration. Options are applied first; every
// subsystem they leave unset is created from its config section.
func New(ctx context.Context, cfg *Config, opts ...Option) (*Kernel, error) {
	merged := DefaultConfig()
	merged.Merge(cfg)

	k := &Kernel{
		domain:       merged.Notify.Domain,
		systemPrompt: merged.SystemPrompt,
		apology:      merged.Apology,
	}
	for _, opt := range opts {
		opt(k)
	}

	if k.notifier == nil {
		return nil, ErrNoNotifier
	}
	if k.logger == nil {
		k.logger = slog.Default()
	}

	if k.observer == nil {
		obs, err := observability.GetObserver(merged.Observer, k.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create observer: %w", err)
		}
		k.observer = obs
	}

	if k.agent == nil {
		a, err := agent.New(&merged.Agent)
		if err != nil {
			return nil, fmt.Errorf("failed to create agent: %w", err)
		}
		k.agent = a
	}

	if k.store == nil {
		s, err := store.New(ctx, &merged.Store, k.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create store: %w", err)
		}
		k.store = s
		k.ownsStore = true
	}

	if k.tools == nil {
		k.tools = tools.Discover(builtin.Units(k.store), k.logger)
	}

	k.sessions = session.NewManager(k.store, merged.Session,
		session.WithNotifier(k.notifier),
		session.WithDomain(k.domain),
		session.WithLogger(k.logger),
	)

	return k, nil
}

// Store returns the kernel's key-value store.
func (k *Kernel) Store() *store.Store {
	return k.store
}

// Tools returns the kernel's tool registry.
func (k *Kernel) Tools() *tools.Registry {
	return k.tools
}

// Sessions returns the kernel's session manager.
func (k *Kernel) Sessions() *session.Manager {
	return k.sessions
}

// Close releases the store when the kernel created it.
func (k *Kernel) Close() error {
	if k.ownsStore {
		return k.store.Close()
	}
	return nil
}

// HandleMessage runs one turn for an inbound message: the model is consulted
// at most twice, at most one tool runs, and only the final reply is added to
// the persisted history.
//
// A failure before the reply exists sends the apology, persists nothing, and
// returns an error wrapping ErrTurnFailed. A failed reply delivery is logged
// and the reply is still persisted. A failed save returns an error wrapping
// ErrPersistFailed.
//
// A blank message is answered with the apology and returns ErrEmptyMessage
// without touching the session. A message without a sender returns
// ErrEmptyMessage with nothing sent.
func (k *Kernel) HandleMessage(ctx context.Context, in Inbound) (*Result, error) {
	userID := notify.UserID(in.From, k.domain)
	if userID == "" {
		return nil, ErrEmptyMessage
	}
	text := strings.TrimSpace(in.Body)
	if text == "" {
		to := notify.Recipient(userID, k.domain)
		if err := k.notifier.SendText(ctx, to, k.apology); err != nil {
			k.logger.WarnContext(ctx, "apology delivery failed",
				slog.String("to", to),
				slog.String("error", err.Error()),
			)
		}
		return nil, ErrEmptyMessage
	}

	result := &Result{
		TurnID: uuid.Must(uuid.NewV7()).String(),
		UserID: userID,
		State:  StateAwaitingFirstResponse,
	}
	to := notify.Recipient(userID, k.domain)

	observability.Emit(ctx, k.observer, EventTurnStart, observability.LevelInfo, "kernel.HandleMessage", map[string]any{
		"turn_id":     result.TurnID,
		"user_id":     userID,
		"text_length": len(text),
		"tools":       k.tools.Len(),
	})

	sess, err := k.sessions.Open(ctx, userID)
	if err != nil {
		return result, k.fail(ctx, result, to, err)
	}
	sess.AppendUser(text)

	reply, err := k.converse(ctx, result, sess, to)
	if err != nil {
		return result, k.fail(ctx, result, to, err)
	}

	result.Reply = reply
	result.State = StateDone

	if reply != "" {
		if err := k.notifier.SendText(ctx, to, reply); err != nil {
			k.logger.WarnContext(ctx, "reply delivery failed",
				slog.String("turn_id", result.TurnID),
				slog.String("to", to),
				slog.String("error", err.Error()),
			)
			observability.Emit(ctx, k.observer, EventDeliveryFailed, observability.LevelWarning, "kernel.HandleMessage", map[string]any{
				"turn_id": result.TurnID,
				"error":   err.Error(),
			})
		} else {
			result.Delivered = true
		}
		sess.AppendAssistant(reply)
	}

	if err := k.sessions.Save(ctx, sess); err != nil {
		k.logger.ErrorContext(ctx, "session persist failed",
			slog.String("turn_id", result.TurnID),
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		observability.Emit(ctx, k.observer, EventPersistFailed, observability.LevelError, "kernel.HandleMessage", map[string]any{
			"turn_id": result.TurnID,
			"error":   err.Error(),
		})
		return result, fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}

	observability.Emit(ctx, k.observer, EventTurnComplete, observability.LevelInfo, "kernel.HandleMessage", map[string]any{
		"turn_id":      result.TurnID,
		"user_id":      userID,
		"tool":         result.ToolCall != nil,
		"reply_length": len(reply),
		"delivered":    result.Delivered,
	})

	return result, nil
}

// converse drives the model exchange and returns the final reply text.
func (k *Kernel) converse(ctx context.Context, result *Result, sess *session.Session, to string) (string, error) {
	messages := k.prompt(sess)
	available := k.tools.Describe()

	resp, err := k.agent.Tools(ctx, messages, available)
	if err != nil {
		return "", fmt.Errorf("first model call: %w", err)
	}
	choice, ok := resp.FirstChoice()
	if !ok {
		return "", fmt.Errorf("first model call: %w", ErrEmptyResponse)
	}

	if len(choice.ToolCalls) == 0 {
		k.emitResponse(ctx, result, 1, choice.Content)
		return choice.Content, nil
	}

	result.State = StateToolRequested
	call := choice.ToolCalls[0]
	result.DroppedCalls = len(choice.ToolCalls) - 1
	if result.DroppedCalls > 0 {
		k.logger.WarnContext(ctx, "model requested several tools, executing the first only",
			slog.String("turn_id", result.TurnID),
			slog.String("tool", call.Name),
			slog.Int("dropped", result.DroppedCalls),
		)
	}

	toolResult := k.execute(ctx, result, sess.UserID(), to, call)
	result.ToolCall = &ToolCallRecord{ToolCall: call, Result: toolResult}

	messages = append(messages,
		protocol.Message{
			Role:      protocol.RoleAssistant,
			Content:   choice.Content,
			ToolCalls: []protocol.ToolCall{call},
		},
		protocol.Message{
			Role:       protocol.RoleTool,
			Content:    toolResult.JSON(),
			ToolCallID: call.ID,
		},
	)

	result.State = StateAwaitingSecondResponse
	resp, err = k.agent.Tools(ctx, messages, available)
	if err != nil {
		return "", fmt.Errorf("second model call: %w", err)
	}
	choice, ok = resp.FirstChoice()
	if !ok {
		return "", fmt.Errorf("second model call: %w", ErrEmptyResponse)
	}

	if n := len(choice.ToolCalls); n > 0 {
		k.logger.WarnContext(ctx, "ignoring tool calls in second model response",
			slog.String("turn_id", result.TurnID),
			slog.Int("count", n),
		)
	}

	k.emitResponse(ctx, result, 2, choice.Content)
	return choice.Content, nil
}

func (k *Kernel) execute(ctx context.Context, result *Result, userID, to string, call protocol.ToolCall) tools.Result {
	observability.Emit(ctx, k.observer, EventToolCall, observability.LevelVerbose, "kernel.HandleMessage", map[string]any{
		"turn_id": result.TurnID,
		"name":    call.Name,
		"dropped": result.DroppedCalls,
	})

	var out tools.Result
	args, err := tools.ParseArguments(call.Arguments)
	var argsErr *tools.ArgsError
	switch {
	case errors.As(err, &argsErr):
		out = argsErr.Result()
	case err != nil:
		out = tools.Fail("Invalid JSON args: %s", err)
	default:
		out = k.tools.Dispatch(ctx, call.Name, tools.Call{
			UserID:    userID,
			Recipient: to,
			Notifier:  k.notifier,
			Args:      args,
		})
	}

	observability.Emit(ctx, k.observer, EventToolComplete, observability.LevelVerbose, "kernel.HandleMessage", map[string]any{
		"turn_id": result.TurnID,
		"name":    call.Name,
		"ok":      out.OK,
		"error":   out.Error,
	})

	return out
}

func (k *Kernel) emitResponse(ctx context.Context, result *Result, call int, content string) {
	observability.Emit(ctx, k.observer, EventResponse, observability.LevelInfo, "kernel.HandleMessage", map[string]any{
		"turn_id":         result.TurnID,
		"model_call":      call,
		"response_length": len(content),
	})
}

func (k *Kernel) fail(ctx context.Context, result *Result, to string, err error) error {
	result.State = StateFailed

	k.logger.ErrorContext(ctx, "turn failed",
		slog.String("turn_id", result.TurnID),
		slog.String("user_id", result.UserID),
		slog.String("error", err.Error()),
	)
	if sendErr := k.notifier.SendText(ctx, to, k.apology); sendErr != nil {
		k.logger.WarnContext(ctx, "apology delivery failed",
			slog.String("turn_id", result.TurnID),
			slog.String("error", sendErr.Error()),
		)
	}

	observability.Emit(ctx, k.observer, EventTurnFailed, observability.LevelError, "kernel.HandleMessage", map[string]any{
		"turn_id": result.TurnID,
		"error":   err.Error(),
	})

	return fmt.Errorf("%w: %w", ErrTurnFailed, err)
}

func (k *Kernel) prompt(sess *session.Session) []protocol.Message {
	history := sess.History()

	if k.systemPrompt == "" {
		return history
	}

	messages := make([]protocol.Message, 0, len(history)+1)
	messages = append(messages, protocol.NewMessage(protocol.RoleSystem, k.systemPrompt))
	messages = append(messages, history...)
	return messages
}
