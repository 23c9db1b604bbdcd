package service

import (
	"context"
	"fmt"
	"strings"

	"inline-media-backend/internal/config"
	"inline-media-backend/internal/events"
	"inline-media-backend/internal/markup"
	"inline-media-backend/internal/model"

	"github.com/google/uuid"
)

// ReconcileInput is a successful generation waiting to be placed in its message.
type ReconcileInput struct {
	SessionID      string
	MessageID      string
	URL            string
	OriginalPrompt string
	FinalPrompt    string
	GenType        model.GenType
	Settings       config.Settings
	// Placeholder is the pending marker to drop in the same update, if any.
	Placeholder string
}

func newRecordID(ms int64) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("custom-img-%d-%s", ms, suffix)
}

// snapshot records the settings that produced a record. Chained records report the
// shorter static side as their base size.
func snapshot(st config.Settings) model.MediaSettings {
	ms := model.MediaSettings{
		AspectRatio: st.AspectRatio,
		BaseSize:    st.BaseSize,
		Style:       st.Style,
		Source:      model.SourceLegacy,
	}
	if st.UseChained {
		ms.Source = model.SourceChained
		ms.BaseSize = min(st.StaticWidth, st.StaticHeight)
	}
	return ms
}

func (s *MediaService) newRecord(in ReconcileInput) model.MediaRecord {
	now := s.now().UnixMilli()
	return model.MediaRecord{
		ID:             newRecordID(now),
		URL:            in.URL,
		Prompt:         in.FinalPrompt,
		OriginalPrompt: in.OriginalPrompt,
		GenType:        in.GenType,
		Timestamp:      now,
		Settings:       snapshot(in.Settings),
	}
}

// Reconcile places a generated artifact in its message. In container mode the
// directive is re-located in the current markup and the container is spliced right
// before it, together with the new record, in one storage update. A directive that
// has vanished aborts with ErrReconciliationMiss and nothing is persisted.
func (s *MediaService) Reconcile(ctx context.Context, in ReconcileInput) (*model.MediaRecord, error) {
	st := in.Settings
	entry := s.log(in.SessionID, in.MessageID)

	if !st.UseCustomContainers {
		_, err := s.store.UpdateMessage(in.SessionID, in.MessageID, func(m *model.Message) error {
			m.Extra.Image = in.URL
			m.Extra.InlineImage = true
			html, err := markup.AppendInlineMedia(m.HTMLContent, in.URL, in.FinalPrompt)
			if err != nil {
				return err
			}
			m.HTMLContent = html
			return nil
		})
		return nil, err
	}

	rec := s.newRecord(in)
	container, err := markup.RenderContainer(rec, s.translator.Labels(st.Locale))
	if err != nil {
		return nil, err
	}

	_, err = s.store.UpdateMessage(in.SessionID, in.MessageID, func(m *model.Message) error {
		html, err := markup.RemovePending(m.HTMLContent, in.MessageID, in.Placeholder)
		if err != nil {
			return err
		}
		match := s.extract(st, in.SessionID, in.MessageID, html)
		if match == nil {
			return ErrReconciliationMiss
		}
		out, ok := markup.InsertBefore(html, match.FullMatch, container)
		if !ok {
			return ErrReconciliationMiss
		}
		m.HTMLContent = out
		m.Extra.CustomImages = append(m.Extra.CustomImages, rec)
		return nil
	})
	if err != nil {
		entry.Errorf("放置生成结果失败: %v", err)
		return nil, err
	}

	entry.Infof("媒体已插入: %s", rec.ID)
	s.publishAfter(events.ImgGenerated, in.SessionID, in.MessageID, rec.ID, rec.Settings.Source)
	return &rec, nil
}

// publishAfter emits a container notification once the short settling delay has
// passed, carrying the container markup as it is at that point.
func (s *MediaService) publishAfter(name, sessionID, messageID, recordID, source string) {
	s.after(s.delays.Event, func() {
		msg, err := s.store.GetMessage(sessionID, messageID)
		if err != nil {
			return
		}
		html, err := markup.ContainerHTML(msg.HTMLContent, recordID)
		if err != nil || html == "" {
			return
		}
		s.bus.Emit(events.Event{
			Name:      name,
			SessionID: sessionID,
			MessageID: messageID,
			Data: map[string]any{
				"container_id":   recordID,
				"container_html": html,
				"source":         source,
				"timestamp":      s.now().UnixMilli(),
			},
		})
	})
}
