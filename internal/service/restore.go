package service

import (
	"context"

	"inline-media-backend/internal/events"
	"inline-media-backend/internal/markup"
	"inline-media-backend/internal/model"

	"golang.org/x/sync/errgroup"
)

// RestoreMessage re-renders a message's stored records into its markup without
// generating anything. Existing containers are dropped first, then each record is
// spliced before the directive, or appended when the directive is gone. It returns
// the number of records restored. A message without records is left untouched.
func (s *MediaService) RestoreMessage(ctx context.Context, sessionID, messageID string) (int, error) {
	st := s.settings.Get()
	if !st.UseCustomContainers {
		return 0, nil
	}

	msg, err := s.store.GetMessage(sessionID, messageID)
	if err != nil {
		return 0, err
	}
	if len(msg.Extra.CustomImages) == 0 {
		return 0, nil
	}

	labels := s.translator.Labels(st.Locale)
	var anchored []model.MediaRecord
	restored := 0

	_, err = s.store.UpdateMessage(sessionID, messageID, func(m *model.Message) error {
		anchored, restored = nil, 0
		html, _, err := markup.RemoveContainers(m.HTMLContent)
		if err != nil {
			return err
		}
		for _, rec := range m.Extra.CustomImages {
			container, err := markup.RenderContainer(rec, labels)
			if err != nil {
				return err
			}
			if match := s.extract(st, sessionID, messageID, html); match != nil {
				if out, ok := markup.InsertBefore(html, match.FullMatch, container); ok {
					html = out
					anchored = append(anchored, rec)
					restored++
					continue
				}
			}
			html = markup.Append(html, container)
			restored++
		}
		m.HTMLContent = html
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.log(sessionID, messageID).Debugf("恢复了 %d 个媒体容器", restored)
	s.states.set(sessionID, messageID, StateHasMedia)
	for _, rec := range anchored {
		s.publishAfter(events.ImgRestored, sessionID, messageID, rec.ID, rec.Settings.Source)
	}
	return restored, nil
}

// RestoreChat restores every message of a session that holds records, a few messages
// at a time.
func (s *MediaService) RestoreChat(ctx context.Context, sessionID string) error {
	messages, err := s.store.GetMessages(sessionID)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for _, msg := range messages {
		if len(msg.Extra.CustomImages) == 0 {
			continue
		}
		id := msg.ID
		g.Go(func() error {
			_, err := s.RestoreMessage(ctx, sessionID, id)
			return err
		})
	}
	return g.Wait()
}
