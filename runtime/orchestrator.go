// Package runtime is the core of the chat: membership, the per-scope message
// log, the subscription hub, and the orchestrator coordinating every write.
package runtime

import (
	"chat-core/contract"
	"chat-core/domain/chat"
	"chat-core/domain/event"
	"chat-core/domain/search"
	"chat-core/errors"
	"chat-core/moderation"
	"chat-core/observability"
	"chat-core/repositories"
	"chat-core/runtime/workers"
	"context"
	"embed"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

//go:embed censored/*
var censoredFolder embed.FS

type Options struct {
	SubscriptionBufferSize int
	EventBufferSize        int
	RecentLimit            int
	SearchLimit            int
	MaxContentLength       int
	OperationTimeout       time.Duration
	SinkTimeout            time.Duration
	EnableModeration       bool
	CharReplacement        rune
	AssistantName          string
}

type Repositories struct {
	Users         repositories.IUserRepository
	Channels      repositories.IChannelRepository
	Conversations repositories.IConversationRepository
	Messages      repositories.IMessageRepository
	Search        repositories.ISearchRepository
}

// Orchestrator is the write path of the chat. Each append runs, under the
// scope's single writer: validation, commit to the log, search indexing,
// delivery to live subscribers, the conversation's last-message update, and
// the hand-off of the domain event to the background sinks. Every subscriber
// of a scope therefore sees one total order.
type Orchestrator struct {
	mu             sync.Mutex
	log            *slog.Logger
	options        Options
	supervisor     contract.ISupervisor
	registry       *Registry
	membership     *Membership
	messageLog     *MessageLog
	search         repositories.ISearchRepository
	monitoring     *observability.MonitoringManager
	moderator      *moderation.Moderator
	permanentSinks []contract.EventSink
	workers        []contract.Worker
	domainEvents   chan event.DomainEvent
}

func NewOrchestrator(log *slog.Logger, supervisor contract.ISupervisor, registry *Registry,
	repos Repositories, monitoring *observability.MonitoringManager, options Options) *Orchestrator {
	o := &Orchestrator{
		log:          log,
		options:      options,
		supervisor:   supervisor,
		registry:     registry,
		search:       repos.Search,
		monitoring:   monitoring,
		domainEvents: make(chan event.DomainEvent, options.EventBufferSize),
	}
	o.membership = NewMembership(log, repos.Users, repos.Channels, repos.Conversations, registry, o.emit)
	o.messageLog = NewMessageLog(repos.Messages, o.membership)
	return o
}

// Add registers permanent sinks fed with every committed domain event.
func (o *Orchestrator) Add(sinks ...contract.EventSink) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.permanentSinks = append(o.permanentSinks, sinks...)
}

// AddWorkers registers background workers started with the orchestrator.
func (o *Orchestrator) AddWorkers(w ...contract.Worker) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.workers = append(o.workers, w...)
}

// DomainEvents exposes the queue feeding the sinks, for capacity checks.
func (o *Orchestrator) DomainEvents() chan event.DomainEvent { return o.domainEvents }

// Load restores the directory from storage, seeds the assistant user and
// builds the moderator. It must complete before any request is served.
func (o *Orchestrator) Load() error {
	if err := o.membership.Load(); err != nil {
		return err
	}
	if _, err := o.membership.SeedAssistant(o.options.AssistantName); err != nil {
		return err
	}
	if !o.options.EnableModeration {
		return nil
	}
	moderator, err := o.prepareModeration("censored")
	if err != nil {
		return err
	}
	o.moderator = moderator
	return nil
}

// prepareModeration loads censored words and builds the Aho-Corasick automaton.
func (o *Orchestrator) prepareModeration(dir string) (*moderation.Moderator, error) {
	data, err := NewCensoredLoader(censoredFolder).LoadAll(dir)
	if err != nil {
		return nil, err
	}
	o.log.Info(fmt.Sprintf("%d censored files loaded [%s]",
		len(data.Languages), strings.Join(data.Languages, ",")))
	o.log.Info(fmt.Sprintf("%d unique censored words loaded", len(data.Words)))
	return moderation.NewModerator(data.Words, o.options.CharReplacement, o.log)
}

// Start runs the fanout and every registered worker under the supervisor.
// It blocks until ctx is cancelled or Stop is called.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	fanout := workers.NewEventFanout(o.log, o.domainEvents, o.options.SinkTimeout).
		Add(o.permanentSinks...).
		OnFailure(func(contract.EventSink, error) { o.monitoring.IncrSinkFailures() })
	o.supervisor.Add(fanout)
	o.supervisor.Add(o.workers...)
	o.mu.Unlock()

	o.log.Info("Starting orchestrator and all supervised workers")
	o.supervisor.Run(ctx)
	return nil
}

// Stop cancels the supervised workers.
func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")
	o.supervisor.Stop()
}

// emit hands an event to the sinks without ever blocking a commit.
func (o *Orchestrator) emit(e event.DomainEvent) {
	select {
	case o.domainEvents <- e:
	default:
		o.monitoring.IncrDroppedEvents()
		o.log.Warn("Domain event channel full, dropping event", "topic", e.Topic())
	}
}

// withTimeout bounds an operation by OperationTimeout; an already ended
// context fails right away with ErrTimeout.
func (o *Orchestrator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc, error) {
	var cancel context.CancelFunc
	if o.options.OperationTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, o.options.OperationTimeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	if err := ctx.Err(); err != nil {
		cancel()
		return nil, nil, errors.FromContext(err)
	}
	return ctx, cancel, nil
}

func (o *Orchestrator) UpsertUser(ctx context.Context, identity chat.Identity) (chat.User, error) {
	if err := ctx.Err(); err != nil {
		return chat.User{}, errors.FromContext(err)
	}
	return o.membership.UpsertUser(identity)
}

func (o *Orchestrator) User(id chat.UserID) (chat.User, error) {
	return o.membership.User(id)
}

// Connect and Disconnect track live sessions for presence.
func (o *Orchestrator) Connect(userID chat.UserID) error { return o.membership.Connect(userID) }

func (o *Orchestrator) Disconnect(userID chat.UserID) error { return o.membership.Disconnect(userID) }

func (o *Orchestrator) IsVisible(userID chat.UserID, scope chat.Scope) bool {
	return o.membership.IsVisible(userID, scope)
}

func (o *Orchestrator) ListVisibleChannels(ctx context.Context, userID chat.UserID) ([]chat.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.FromContext(err)
	}
	return o.membership.ListVisibleChannels(userID), nil
}

func (o *Orchestrator) ListConversations(ctx context.Context, userID chat.UserID) ([]chat.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.FromContext(err)
	}
	return o.membership.ListConversations(userID), nil
}

// CreateChannel registers the channel, indexes its name and publishes it.
func (o *Orchestrator) CreateChannel(ctx context.Context, cmd chat.CreateChannelCommand) (chat.Channel, error) {
	if err := ctx.Err(); err != nil {
		return chat.Channel{}, errors.FromContext(err)
	}
	channel, err := o.membership.CreateChannel(cmd)
	if err != nil {
		return chat.Channel{}, err
	}
	if err := o.search.IndexChannel(channel); err != nil {
		o.log.Error("Unable to index channel", "channel", channel.ID, "error", err)
	}
	return channel, nil
}

func (o *Orchestrator) AddMember(ctx context.Context, cmd chat.MembershipCommand) (chat.Channel, error) {
	if err := ctx.Err(); err != nil {
		return chat.Channel{}, errors.FromContext(err)
	}
	return o.membership.AddMember(cmd)
}

// RemoveMember holds the channel's writer while revoking, so no append or
// subscribe by the revoked user can slip in between the check and the removal.
func (o *Orchestrator) RemoveMember(ctx context.Context, cmd chat.MembershipCommand) (chat.Channel, error) {
	ctx, cancel, err := o.withTimeout(ctx)
	if err != nil {
		return chat.Channel{}, err
	}
	defer cancel()

	scope := chat.ChannelScope(cmd.ChannelID)
	if !o.membership.ScopeExists(scope) {
		return chat.Channel{}, fmt.Errorf("%w: channel %s", errors.ErrNotFound, cmd.ChannelID)
	}
	release, err := o.messageLog.Lock(ctx, scope)
	if err != nil {
		return chat.Channel{}, err
	}
	defer release()
	return o.membership.RemoveMember(cmd)
}

func (o *Orchestrator) CreateConversation(ctx context.Context, cmd chat.CreateConversationCommand) (chat.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return chat.Conversation{}, errors.FromContext(err)
	}
	return o.membership.CreateConversation(cmd)
}

// PostMessage appends a message to its scope and delivers it.
func (o *Orchestrator) PostMessage(ctx context.Context, cmd chat.PostMessageCommand) (chat.Message, error) {
	if err := chat.Validate(cmd); err != nil {
		return chat.Message{}, err
	}
	text := strings.TrimSpace(cmd.Text)
	if text == "" {
		return chat.Message{}, errors.ErrEmptyText
	}
	if maxLength := o.options.MaxContentLength; maxLength > 0 && utf8.RuneCountInString(text) > maxLength {
		return chat.Message{}, fmt.Errorf("%w: %d characters maximum", errors.ErrTextTooLong, maxLength)
	}
	if !o.membership.ScopeExists(cmd.Scope) {
		return chat.Message{}, fmt.Errorf("%w: scope %s", errors.ErrNotFound, cmd.Scope)
	}
	if o.moderator != nil {
		censored, words := o.moderator.Censor(text)
		if len(words) > 0 {
			o.log.Debug("Message censored", "scope", cmd.Scope, "author", cmd.AuthorID, "words", len(words))
		}
		text = censored
	}

	ctx, cancel, err := o.withTimeout(ctx)
	if err != nil {
		return chat.Message{}, err
	}
	defer cancel()

	release, err := o.messageLog.Lock(ctx, cmd.Scope)
	if err != nil {
		return chat.Message{}, err
	}
	defer release()

	// From here on the commit is not cancellable.
	message, err := o.messageLog.Append(cmd.Scope, cmd.AuthorID, text)
	if err != nil {
		return chat.Message{}, err
	}
	o.commit(message)
	return message, nil
}

// commit runs the post-append steps while the scope writer is still held.
func (o *Orchestrator) commit(message chat.Message) {
	if err := o.search.IndexMessage(message); err != nil {
		o.log.Error("Unable to index message", "scope", message.Scope, "seq", message.Seq, "error", err)
	}
	o.registry.Publish(scopeStream(message.Scope), event.Delta{
		Seq:     message.Seq,
		Kind:    event.DeltaMessage,
		Message: &message,
	})
	if err := o.membership.RecordLastMessage(message); err != nil {
		o.log.Error("Unable to record last message", "scope", message.Scope, "error", err)
	}
	o.emit(event.MessagePosted{Message: message})
}

func (o *Orchestrator) checkReadable(userID chat.UserID, scope chat.Scope) error {
	if !o.membership.ScopeExists(scope) {
		return fmt.Errorf("%w: scope %s", errors.ErrNotFound, scope)
	}
	if !o.membership.IsVisible(userID, scope) {
		return fmt.Errorf("%w: %s cannot read %s", errors.ErrForbidden, userID, scope)
	}
	return nil
}

func (o *Orchestrator) recentLimit(limit int) int {
	if limit <= 0 {
		return o.options.RecentLimit
	}
	return limit
}

// ReadRecent returns the latest messages of a scope the user can see, oldest first.
func (o *Orchestrator) ReadRecent(ctx context.Context, userID chat.UserID, scope chat.Scope, limit int) ([]chat.Message, error) {
	if err := o.checkReadable(userID, scope); err != nil {
		return nil, err
	}
	ctx, cancel, err := o.withTimeout(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	messages, _, err := o.messageLog.ReadRecent(ctx, scope, o.recentLimit(limit))
	return messages, err
}

// History pages backwards through a scope: messages strictly before the
// position before (0 for the latest), oldest first.
func (o *Orchestrator) History(ctx context.Context, userID chat.UserID, scope chat.Scope, before uint64, limit int) ([]chat.Message, error) {
	if err := o.checkReadable(userID, scope); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.FromContext(err)
	}
	return o.messageLog.History(scope, before, o.recentLimit(limit))
}

// Search looks a prefix up and keeps only what the user can see.
func (o *Orchestrator) Search(ctx context.Context, userID chat.UserID, query search.Query) ([]search.Hit, error) {
	ctx, cancel, err := o.withTimeout(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	if query.Limit <= 0 {
		query.Limit = o.options.SearchLimit
	}
	hits, err := o.search.Search(ctx, query, func(hit search.Hit) bool {
		return o.membership.IsVisible(userID, hit.Scope)
	})
	return hits, errors.FromContext(err)
}

// Subscribe registers a live subscription: a snapshot, then every later change.
// For a scope the snapshot holds the last limit messages.
func (o *Orchestrator) Subscribe(ctx context.Context, userID chat.UserID, topic Topic, limit int) (*Subscription, error) {
	if _, err := o.membership.User(userID); err != nil {
		return nil, err
	}
	switch topic.Kind {
	case TopicChannels:
		return o.membership.SubscribeChannels(userID, o.options.SubscriptionBufferSize), nil
	case TopicConversations:
		return o.membership.SubscribeConversations(userID, o.options.SubscriptionBufferSize), nil
	case TopicScope:
		return o.subscribeScope(ctx, userID, topic, o.recentLimit(limit))
	default:
		return nil, fmt.Errorf("%w: unknown topic %q", errors.ErrInvalidPayload, topic.Kind)
	}
}

// subscribeScope computes the snapshot and registers under the scope writer,
// so the first delta is exactly the next commit.
func (o *Orchestrator) subscribeScope(ctx context.Context, userID chat.UserID, topic Topic, limit int) (*Subscription, error) {
	if err := o.checkReadable(userID, topic.Scope); err != nil {
		return nil, err
	}
	ctx, cancel, err := o.withTimeout(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	release, err := o.messageLog.Lock(ctx, topic.Scope)
	if err != nil {
		return nil, err
	}
	defer release()

	// Visibility may have been revoked while waiting.
	if !o.membership.IsVisible(userID, topic.Scope) {
		return nil, fmt.Errorf("%w: %s cannot read %s", errors.ErrForbidden, userID, topic.Scope)
	}
	messages, head, err := o.messageLog.ReadRecent(ctx, topic.Scope, limit)
	if err != nil {
		return nil, err
	}
	sub := newSubscription(userID, topic, limit, o.options.SubscriptionBufferSize, passthrough{})
	o.registry.Register(sub, scopeStream(topic.Scope))
	sub.live(event.Snapshot{Seq: head, Messages: messages})
	return sub, nil
}

// Resubscribe closes sub and opens the same topic again from a fresh snapshot.
// It is how a lagging subscriber catches up.
func (o *Orchestrator) Resubscribe(ctx context.Context, sub *Subscription) (*Subscription, error) {
	sub.Close()
	return o.Subscribe(ctx, sub.UserID, sub.Topic, sub.Limit)
}

// Unsubscribe closes one of the user's subscriptions. It is idempotent.
func (o *Orchestrator) Unsubscribe(userID chat.UserID, id string) error {
	sub, ok := o.registry.Get(id)
	if !ok || sub.UserID != userID {
		return nil
	}
	sub.Close()
	return nil
}

func (o *Orchestrator) Stats() observability.HubStats {
	return o.registry.Stats()
}
