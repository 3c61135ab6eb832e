package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/abdala981br/automacao/internal/domain"
	"github.com/abdala981br/automacao/internal/notify"
)

type memStore struct {
	mu       sync.Mutex
	profiles map[string]domain.UserProfile
	apps     map[string][]domain.JobApplication

	profileWrites int
	saveErr       error
	createErr     error

	// afterCreate runs once the row is stored, before CreateApplication returns.
	afterCreate func()
}

func newMemStore() *memStore {
	return &memStore{
		profiles: map[string]domain.UserProfile{},
		apps:     map[string][]domain.JobApplication{},
	}
}

func (s *memStore) GetProfile(_ context.Context, identity string) (*domain.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[identity]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *memStore) SaveProfile(_ context.Context, identity string, profile domain.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.profileWrites++
	s.profiles[identity] = profile
	return nil
}

func (s *memStore) ListApplications(_ context.Context, identity string) ([]domain.JobApplication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.JobApplication(nil), s.apps[identity]...), nil
}

func (s *memStore) CreateApplication(ctx context.Context, identity string, app domain.JobApplication) (domain.JobApplication, error) {
	if err := ctx.Err(); err != nil {
		return domain.JobApplication{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return domain.JobApplication{}, s.createErr
	}
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	s.apps[identity] = append(s.apps[identity], app)
	if s.afterCreate != nil {
		s.afterCreate()
	}
	return app, nil
}

func (s *memStore) ResolveApplication(_ context.Context, identity, id string, resolved domain.Applied) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, app := range s.apps[identity] {
		if app.ID != id {
			continue
		}
		if app.Status() != domain.StatusNeedsInput {
			return fmt.Errorf("%w: %s", domain.ErrNotAwaitingInput, id)
		}
		s.apps[identity][i].Detail = resolved
		return nil
	}
	return fmt.Errorf("%w: %s", domain.ErrApplicationNotFound, id)
}

func (s *memStore) count(identity string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.apps[identity])
}

type memFeed struct {
	mu           sync.Mutex
	subs         map[string][]chan notify.ChangeNotice
	published    []notify.ChangeNotice
	subscribeErr error
}

func newMemFeed() *memFeed {
	return &memFeed{subs: map[string][]chan notify.ChangeNotice{}}
}

func (f *memFeed) Publish(ctx context.Context, identity string, topic notify.Topic) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	notice := notify.ChangeNotice{Topic: topic, Identity: identity}
	f.published = append(f.published, notice)
	for _, ch := range f.subs[identity] {
		select {
		case ch <- notice:
		default:
		}
	}
	return nil
}

func (f *memFeed) Subscribe(ctx context.Context, identity string) (<-chan notify.ChangeNotice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	ch := make(chan notify.ChangeNotice, 16)
	f.subs[identity] = append(f.subs[identity], ch)
	go func() {
		<-ctx.Done()
		f.drop(identity, ch)
	}()
	return ch, nil
}

func (f *memFeed) drop(identity string, target chan notify.ChangeNotice) {
	f.mu.Lock()
	defer f.mu.Unlock()
	subs := f.subs[identity]
	for i, ch := range subs {
		if ch == target {
			f.subs[identity] = append(subs[:i], subs[i+1:]...)
			close(ch)
			return
		}
	}
}

// disconnect closes every subscription, as a dropped Redis connection would.
func (f *memFeed) disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, subs := range f.subs {
		for _, ch := range subs {
			close(ch)
		}
		delete(f.subs, id)
	}
}

func (f *memFeed) publishedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

var errBoom = errors.New("boom")
