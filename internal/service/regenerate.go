package service

import (
	"context"
	"fmt"

	"inline-media-backend/internal/config"
	"inline-media-backend/internal/generator"
	"inline-media-backend/internal/i18n"
	"inline-media-backend/internal/markup"
	"inline-media-backend/internal/model"
	"inline-media-backend/internal/style"
)

type regenRequest struct {
	sessionID string
	messageID string
	recordID  string
	req       generator.Request
	st        config.Settings
}

// Regenerate replaces a record's media in place. A record that is already
// regenerating is refused with ErrBusy before anything is called. The returned
// channel receives the result once and is then closed. The work is bound to the
// service lifetime, not the caller's, and the busy flag is cleared on every path.
func (s *MediaService) Regenerate(sessionID, messageID, recordID string) (<-chan error, error) {
	if !s.busy.acquire(recordID) {
		s.log(sessionID, messageID).Infof("记录 %s 正在重新生成，忽略本次请求", recordID)
		return nil, ErrBusy
	}

	rr, err := s.prepareRegen(sessionID, messageID, recordID)
	if err != nil {
		s.busy.release(recordID)
		return nil, err
	}

	done := make(chan error, 1)
	s.goAsync(func(ctx context.Context) {
		defer close(done)

		err := func() error {
			defer s.busy.release(recordID)
			return s.regenerate(ctx, rr)
		}()
		if err != nil {
			s.log(sessionID, messageID).Errorf("重新生成失败: %v", err)
			s.notify(sessionID, messageID, "error", fmt.Sprintf("%s: %v", s.tr(rr.st, i18n.RegenerateFailed), err))
		}
		done <- err
	})
	return done, nil
}

// prepareRegen re-reads the directive from the current markup so edits are picked up,
// falling back to the stored prompt when the directive is gone.
func (s *MediaService) prepareRegen(sessionID, messageID, recordID string) (regenRequest, error) {
	msg, err := s.store.GetMessage(sessionID, messageID)
	if err != nil {
		return regenRequest{}, err
	}
	rec := msg.FindRecord(recordID)
	if rec == nil {
		return regenRequest{}, fmt.Errorf("%w: %s", ErrRecordNotFound, recordID)
	}

	st := s.settings.Get()
	req := generator.Request{
		GenType:        rec.GenType,
		Prompt:         rec.Prompt,
		OriginalPrompt: rec.OriginalPrompt,
		CharacterName:  characterName(msg),
		MessageID:      messageID,
		Settings:       st,
	}
	if req.GenType == "" {
		req.GenType = model.GenSingle
	}

	if match := s.extract(st, sessionID, messageID, msg.HTMLContent); match != nil {
		prompt, ok := style.Apply(match.Prompt, st.Style, st.NegativePrompt)
		if !ok {
			s.log(sessionID, messageID).Warnf("未知风格 %q，使用原始提示词", st.Style)
		}
		req.Prompt = prompt
		req.OriginalPrompt = match.Prompt
		req.GenType = match.GenType
		req.Dialogue = match.Dialogue
	}

	return regenRequest{sessionID: sessionID, messageID: messageID, recordID: recordID, req: req, st: st}, nil
}

func (s *MediaService) regenerate(ctx context.Context, rr regenRequest) error {
	out := <-s.gen.Dispatch(ctx, rr.req)
	if out.Err != nil {
		return out.Err
	}

	labels := s.translator.Labels(rr.st.Locale)
	_, err := s.store.UpdateMessage(rr.sessionID, rr.messageID, func(m *model.Message) error {
		r := m.FindRecord(rr.recordID)
		if r == nil {
			return fmt.Errorf("%w: %s", ErrRecordNotFound, rr.recordID)
		}
		r.URL = out.URL
		r.Prompt = rr.req.Prompt
		r.OriginalPrompt = rr.req.OriginalPrompt
		r.GenType = rr.req.GenType
		r.Timestamp = s.now().UnixMilli()

		html, found, err := markup.ReplaceMedia(m.HTMLContent, *r, labels)
		if err != nil {
			return err
		}
		if found {
			m.HTMLContent = html
		}
		return nil
	})
	if err == nil {
		s.log(rr.sessionID, rr.messageID).Infof("重新生成完成: %s", out.URL)
	}
	return err
}
