package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"inline-media-backend/internal/config"
	"inline-media-backend/internal/directive"
	"inline-media-backend/internal/events"
	"inline-media-backend/internal/generator"
	"inline-media-backend/internal/i18n"
	"inline-media-backend/internal/markup"
	"inline-media-backend/internal/model"
	"inline-media-backend/internal/storage"
	"inline-media-backend/internal/style"
	"inline-media-backend/internal/viewer"
	"inline-media-backend/pkg/logger"

	"github.com/sirupsen/logrus"
)

var (
	ErrReconciliationMiss = errors.New("directive no longer present in message markup")
	ErrBusy               = errors.New("regeneration already in progress")
	ErrRecordNotFound     = errors.New("media record not found")
)

// SettingsSource supplies the live generator settings.
type SettingsSource interface {
	Get() config.Settings
}

// Generator starts a generation and delivers one outcome.
type Generator interface {
	Dispatch(ctx context.Context, req generator.Request) <-chan generator.Outcome
}

// MediaOptions tune the lifecycle delays. Sleep defaults to generator.Sleep.
type MediaOptions struct {
	Delays             config.DelayConfig
	RestoreParallelism int
	Sleep              func(ctx context.Context, d time.Duration) error
	Now                func() time.Time
}

// MediaService is the lifecycle controller: it reacts to host events by generating,
// reconciling and restoring media on messages.
type MediaService struct {
	store      storage.Storage
	bus        *events.Bus
	settings   SettingsSource
	gen        Generator
	translator i18n.Translator
	viewer     *viewer.Viewer

	states *stateTracker
	busy   *busySet

	delays      config.DelayConfig
	parallelism int
	sleep       func(ctx context.Context, d time.Duration) error
	now         func() time.Time

	reported sync.Map

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewMediaService(store storage.Storage, bus *events.Bus, settings SettingsSource, gen Generator, v *viewer.Viewer, opts MediaOptions) *MediaService {
	if opts.Sleep == nil {
		opts.Sleep = generator.Sleep
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.RestoreParallelism <= 0 {
		opts.RestoreParallelism = 4
	}
	if v == nil {
		v = viewer.New(viewer.DefaultOptions)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &MediaService{
		store:       store,
		bus:         bus,
		settings:    settings,
		gen:         gen,
		viewer:      v,
		states:      newStateTracker(opts.Delays.StateTTL),
		busy:        newBusySet(),
		delays:      opts.Delays,
		parallelism: opts.RestoreParallelism,
		sleep:       opts.Sleep,
		now:         opts.Now,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Bind subscribes the controller to the host events. The render handler runs after
// every other render handler.
func (s *MediaService) Bind() {
	s.bus.MakeLast(events.CharacterMessageRendered, func(e events.Event) {
		s.goAsync(func(ctx context.Context) {
			if err := s.HandleRendered(ctx, e.SessionID, e.MessageID); err != nil {
				s.log(e.SessionID, e.MessageID).Warnf("处理消息渲染失败: %v", err)
			}
		})
	})
	s.bus.On(events.ChatChanged, func(e events.Event) {
		s.goAsync(func(ctx context.Context) {
			if err := s.sleep(ctx, s.delays.ChatChanged); err != nil {
				return
			}
			if err := s.RestoreChat(ctx, e.SessionID); err != nil {
				s.log(e.SessionID, "").Warnf("恢复会话媒体失败: %v", err)
			}
		})
	})
	restoreOne := func(e events.Event) {
		s.goAsync(func(ctx context.Context) {
			if err := s.sleep(ctx, s.delays.Restore); err != nil {
				return
			}
			if _, err := s.RestoreMessage(ctx, e.SessionID, e.MessageID); err != nil {
				s.log(e.SessionID, e.MessageID).Warnf("恢复消息媒体失败: %v", err)
			}
		})
	}
	s.bus.On(events.MessageUpdated, restoreOne)
	s.bus.On(events.MessageSwiped, restoreOne)
}

// Wait blocks until every background generation and restoration has finished.
func (s *MediaService) Wait() {
	s.wg.Wait()
}

// Close cancels in-flight work and waits for it.
func (s *MediaService) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *MediaService) goAsync(fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.ctx)
	}()
}

// after runs fn once d has elapsed, unless the service is closed first.
func (s *MediaService) after(d time.Duration, fn func()) {
	s.goAsync(func(ctx context.Context) {
		if err := s.sleep(ctx, d); err != nil {
			return
		}
		fn()
	})
}

func (s *MediaService) log(sessionID, messageID string) *logrus.Entry {
	return logger.WithFields(logrus.Fields{"session_id": sessionID, "message_id": messageID})
}

func extractorFor(st config.Settings) *directive.Extractor {
	if st.UseChained {
		return directive.New(st.ChainedRegex, directive.Chained)
	}
	return directive.New(st.Regex, directive.Legacy)
}

// extract runs the active extractor. A configuration error is reported to the user
// once per pattern and reads as no match.
func (s *MediaService) extract(st config.Settings, sessionID, messageID, html string) *directive.Match {
	m, err := extractorFor(st).Extract(html)
	if err != nil {
		var cfgErr *directive.ConfigurationError
		if errors.As(err, &cfgErr) {
			if _, seen := s.reported.LoadOrStore(cfgErr.Pattern, struct{}{}); !seen {
				s.notify(sessionID, messageID, "error", err.Error())
			}
		}
		s.log(sessionID, messageID).Warnf("提取指令失败: %v", err)
		return nil
	}
	return m
}

// notify publishes a transient user-visible notice.
func (s *MediaService) notify(sessionID, messageID, level, text string) {
	s.bus.Emit(events.Event{
		Name:      events.Notice,
		SessionID: sessionID,
		MessageID: messageID,
		Data:      map[string]any{"level": level, "text": text},
	})
}

func (s *MediaService) tr(st config.Settings, key string) string {
	return s.translator.T(st.Locale, key)
}

// HandleRendered runs the render-completed transition for one message.
func (s *MediaService) HandleRendered(ctx context.Context, sessionID, messageID string) error {
	st := s.settings.Get()
	if !st.Enabled {
		return nil
	}

	msg, err := s.store.GetMessage(sessionID, messageID)
	if err != nil {
		return err
	}
	if msg.Role != model.RoleAssistant || msg.IsSystem {
		return nil
	}

	if len(msg.Extra.CustomImages) > 0 && st.UseCustomContainers {
		_, err := s.RestoreMessage(ctx, sessionID, messageID)
		return err
	}

	match := s.extract(st, sessionID, messageID, msg.HTMLContent)
	if match == nil {
		return nil
	}
	return s.generate(ctx, st, msg, match)
}

func (s *MediaService) generate(ctx context.Context, st config.Settings, msg *model.Message, match *directive.Match) error {
	entry := s.log(msg.SessionID, msg.ID)
	s.states.set(msg.SessionID, msg.ID, StateGenerating)

	finalPrompt, ok := style.Apply(match.Prompt, st.Style, st.NegativePrompt)
	if !ok {
		entry.Warnf("未知风格 %q，使用原始提示词", st.Style)
	}
	entry.WithFields(logrus.Fields{"gen_type": match.GenType}).Infof("开始生成: %s", finalPrompt)

	placeholder := ""
	if st.UseCustomContainers {
		placeholder = markup.PendingPlaceholder(msg.ID, s.tr(st, i18n.Generating))
		if _, err := s.store.UpdateMessage(msg.SessionID, msg.ID, func(m *model.Message) error {
			html, ok := markup.InsertBefore(m.HTMLContent, match.FullMatch, placeholder)
			if !ok {
				return ErrReconciliationMiss
			}
			m.HTMLContent = html
			return nil
		}); err != nil {
			entry.Warnf("插入生成占位符失败: %v", err)
			placeholder = ""
		}
	}
	s.notify(msg.SessionID, msg.ID, "info", s.tr(st, i18n.Generating))

	out := <-s.gen.Dispatch(ctx, generator.Request{
		GenType:        match.GenType,
		Prompt:         finalPrompt,
		OriginalPrompt: match.Prompt,
		Dialogue:       match.Dialogue,
		CharacterName:  characterName(msg),
		MessageID:      msg.ID,
		Settings:       st,
	})
	if out.Err != nil {
		entry.Errorf("生成失败: %v", out.Err)
		s.states.set(msg.SessionID, msg.ID, StateNoMedia)
		s.notify(msg.SessionID, msg.ID, "error", fmt.Sprintf("%s: %v", s.tr(st, i18n.GeneratingFailed), out.Err))
		s.revertAfterFailure(msg.SessionID, msg.ID, placeholder)
		return out.Err
	}

	_, err := s.Reconcile(ctx, ReconcileInput{
		SessionID:      msg.SessionID,
		MessageID:      msg.ID,
		URL:            out.URL,
		OriginalPrompt: match.Prompt,
		FinalPrompt:    finalPrompt,
		GenType:        match.GenType,
		Settings:       st,
		Placeholder:    placeholder,
	})
	if err != nil {
		s.states.set(msg.SessionID, msg.ID, StateNoMedia)
		s.notify(msg.SessionID, msg.ID, "error", s.tr(st, i18n.ReconcileFailed))
		if placeholder != "" {
			s.removePending(msg.SessionID, msg.ID, placeholder)
		}
		return err
	}
	s.states.set(msg.SessionID, msg.ID, StateHasMedia)
	return nil
}

func characterName(msg *model.Message) string {
	if msg.Name == "" {
		return "Unknown"
	}
	return msg.Name
}

// revertAfterFailure removes the pending placeholder once the failure notice has
// been shown, returning the markup to its pre-attempt state.
func (s *MediaService) revertAfterFailure(sessionID, messageID, placeholder string) {
	if placeholder == "" {
		return
	}
	s.after(s.delays.FailureRevert, func() {
		s.removePending(sessionID, messageID, placeholder)
	})
}

func (s *MediaService) removePending(sessionID, messageID, placeholder string) {
	_, err := s.store.UpdateMessage(sessionID, messageID, func(m *model.Message) error {
		html, err := markup.RemovePending(m.HTMLContent, messageID, placeholder)
		if err != nil {
			return err
		}
		m.HTMLContent = html
		return nil
	})
	if err != nil {
		s.log(sessionID, messageID).Warnf("移除生成占位符失败: %v", err)
	}
}

// SetHidden hides or shows one record. The record flag and the container class change
// in the same persistence call.
func (s *MediaService) SetHidden(sessionID, messageID, recordID string, hidden bool) (*model.MediaRecord, error) {
	var rec model.MediaRecord
	_, err := s.store.UpdateMessage(sessionID, messageID, func(m *model.Message) error {
		r := m.FindRecord(recordID)
		if r == nil {
			return fmt.Errorf("%w: %s", ErrRecordNotFound, recordID)
		}
		r.Hidden = hidden
		html, found, err := markup.SetHidden(m.HTMLContent, recordID, hidden)
		if err != nil {
			return err
		}
		if found {
			m.HTMLContent = html
		}
		rec = *r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Record returns a copy of one media record.
func (s *MediaService) Record(sessionID, messageID, recordID string) (*model.MediaRecord, error) {
	msg, err := s.store.GetMessage(sessionID, messageID)
	if err != nil {
		return nil, err
	}
	r := msg.FindRecord(recordID)
	if r == nil {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, recordID)
	}
	rec := *r
	return &rec, nil
}

// OpenViewer shows a record fullscreen, replacing any open view.
func (s *MediaService) OpenViewer(sessionID, messageID, recordID string) (viewer.State, error) {
	rec, err := s.Record(sessionID, messageID, recordID)
	if err != nil {
		return viewer.State{}, err
	}
	return s.viewer.Open(rec.ID, rec.URL), nil
}

func (s *MediaService) Viewer() *viewer.Viewer {
	return s.viewer
}

// State reports the lifecycle position of a message and its busy records.
func (s *MediaService) State(sessionID, messageID string) model.MediaStateResponse {
	resp := model.MediaStateResponse{
		SessionID: sessionID,
		MessageID: messageID,
		State:     string(s.states.get(sessionID, messageID)),
	}
	if msg, err := s.store.GetMessage(sessionID, messageID); err == nil {
		for _, r := range msg.Extra.CustomImages {
			if s.busy.has(r.ID) {
				resp.Busy = append(resp.Busy, r.ID)
			}
		}
	}
	return resp
}
