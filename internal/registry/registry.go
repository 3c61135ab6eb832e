package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/abdala981br/automacao/internal/domain"
	"github.com/abdala981br/automacao/internal/metrics"
	"github.com/abdala981br/automacao/internal/notify"
)

var (
	ErrNotAwaitingInput    = domain.ErrNotAwaitingInput
	ErrApplicationNotFound = domain.ErrApplicationNotFound
	ErrEmptyAnswer         = errors.New("answer must not be empty")
)

// Store is the persistence the registry needs. Every call is scoped to one identity.
type Store interface {
	GetProfile(ctx context.Context, identity string) (*domain.UserProfile, error)
	SaveProfile(ctx context.Context, identity string, profile domain.UserProfile) error
	ListApplications(ctx context.Context, identity string) ([]domain.JobApplication, error)
	CreateApplication(ctx context.Context, identity string, app domain.JobApplication) (domain.JobApplication, error)
	ResolveApplication(ctx context.Context, identity, id string, resolved domain.Applied) error
}

// ChangeFeed carries "something changed" notices between writers and observers.
type ChangeFeed interface {
	Publish(ctx context.Context, identity string, topic notify.Topic) error
	Subscribe(ctx context.Context, identity string) (<-chan notify.ChangeNotice, error)
}

// Registry 负责资料与投递记录的读写，并在每次写入后通过变更通道通知观察者重新加载。
// 存储是唯一数据源，Registry 本身不缓存任何状态。
type Registry struct {
	store  Store
	feed   ChangeFeed
	gen    *Generator
	logger *slog.Logger
}

// New wires a registry.
func New(store Store, feed ChangeFeed, gen *Generator, logger *slog.Logger) *Registry {
	if gen == nil {
		gen = NewGenerator(nil, nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{store: store, feed: feed, gen: gen, logger: logger}
}

// Profile returns the stored profile, or the default one when none was saved.
// The default is never written.
func (r *Registry) Profile(ctx context.Context, identity string) (domain.UserProfile, error) {
	profile, err := r.store.GetProfile(ctx, identity)
	if err != nil {
		return domain.UserProfile{}, err
	}
	if profile == nil {
		return domain.DefaultProfile(), nil
	}
	return *profile, nil
}

// Applications returns the identity's applications, newest first.
func (r *Registry) Applications(ctx context.Context, identity string) ([]domain.JobApplication, error) {
	apps, err := r.store.ListApplications(ctx, identity)
	if err != nil {
		return nil, err
	}
	domain.SortByDateDesc(apps)
	return apps, nil
}

// ObserveProfile emits the current profile, then a fresh one after every profile change.
func (r *Registry) ObserveProfile(ctx context.Context, identity string) (<-chan domain.UserProfile, error) {
	return observe(ctx, r, identity, notify.TopicProfile, r.Profile)
}

// ObserveApplications emits the sorted list, then a fresh one after every change.
func (r *Registry) ObserveApplications(ctx context.Context, identity string) (<-chan []domain.JobApplication, error) {
	return observe(ctx, r, identity, notify.TopicApplications, r.Applications)
}

// observe 先订阅再读取快照，保证快照之后的变更不会丢失。
// 订阅断开时记录日志并关闭输出通道，观察方保留最后一次快照。
func observe[T any](
	ctx context.Context,
	r *Registry,
	identity string,
	topic notify.Topic,
	load func(context.Context, string) (T, error),
) (<-chan T, error) {
	ctx, cancel := context.WithCancel(ctx)
	log := r.logger.With(slog.String("identity", identity), slog.String("topic", string(topic)))

	notices, err := r.feed.Subscribe(ctx, identity)
	if err != nil {
		cancel()
		log.Error("subscribe change feed failed", slog.Any("error", err))
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	first, err := load(ctx, identity)
	if err != nil {
		cancel()
		log.Error("load snapshot failed", slog.Any("error", err))
		return nil, fmt.Errorf("load %s: %w", topic, err)
	}

	out := make(chan T, 1)
	out <- first

	go func() {
		defer cancel()
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case notice, ok := <-notices:
				if !ok {
					log.Warn("change feed closed, view is stale")
					return
				}
				if notice.Topic != topic {
					continue
				}
				snapshot, err := load(ctx, identity)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					log.Error("reload snapshot failed", slog.Any("error", err))
					continue
				}
				select {
				case out <- snapshot:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// SaveProfile 整体覆盖资料。写入失败直接返回给调用方。
func (r *Registry) SaveProfile(ctx context.Context, identity string, profile domain.UserProfile) error {
	if err := r.store.SaveProfile(ctx, identity, profile); err != nil {
		r.logger.Error("save profile failed", slog.String("identity", identity), slog.Any("error", err))
		return fmt.Errorf("save profile: %w", err)
	}
	r.publish(ctx, identity, notify.TopicProfile)
	return nil
}

// ResolveNeedsInput 将 needs_input 记录改为 applied 并写入人工回答备注。
// 状态校验在存储层以条件更新完成。
func (r *Registry) ResolveNeedsInput(ctx context.Context, identity, id, answer string) error {
	log := r.logger.With(slog.String("identity", identity), slog.String("application_id", id))
	if strings.TrimSpace(answer) == "" {
		return ErrEmptyAnswer
	}

	if err := r.store.ResolveApplication(ctx, identity, id, domain.Resolution(answer)); err != nil {
		switch {
		case errors.Is(err, ErrNotAwaitingInput):
			metrics.ObserveResolution("conflict")
			log.Info("resolve rejected: application not awaiting input")
		case errors.Is(err, ErrApplicationNotFound):
			metrics.ObserveResolution("not_found")
			log.Info("resolve rejected: application not found")
		default:
			metrics.ObserveResolution("error")
			log.Error("resolve application failed", slog.Any("error", err))
		}
		return err
	}

	metrics.ObserveResolution("ok")
	r.publish(ctx, identity, notify.TopicApplications)
	return nil
}

// SimulateBotTick 生成并持久化一条模拟投递记录。失败只记录日志，下一次 tick 自然重试。
// ctx 已取消时不会写入。
func (r *Registry) SimulateBotTick(ctx context.Context, identity string) (domain.JobApplication, error) {
	if err := ctx.Err(); err != nil {
		return domain.JobApplication{}, err
	}

	created, err := r.store.CreateApplication(ctx, identity, r.gen.Next())
	if err != nil {
		metrics.ObserveTickFailure()
		r.logger.Warn("bot tick skipped",
			slog.String("identity", identity),
			slog.Any("error", err),
		)
		return domain.JobApplication{}, err
	}

	metrics.ObserveTick(string(created.Status()))
	r.publish(ctx, identity, notify.TopicApplications)
	return created, nil
}

const publishTimeout = 5 * time.Second

// 写入已提交后才调用：通知脱离调用方的取消，只受自身超时约束。
// 通知失败只影响实时刷新，记录日志即可。
func (r *Registry) publish(ctx context.Context, identity string, topic notify.Topic) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := r.feed.Publish(ctx, identity, topic); err != nil {
		r.logger.Warn("publish change notice failed",
			slog.String("identity", identity),
			slog.String("topic", string(topic)),
			slog.Any("error", err),
		)
	}
}
