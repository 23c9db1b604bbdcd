package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"inline-media-backend/internal/clipboard"
	"inline-media-backend/internal/i18n"
	"inline-media-backend/internal/model"
	"inline-media-backend/internal/utils"

	"github.com/spf13/cobra"
)

type options struct {
	Server    string
	SessionID string
	MessageID string
	RecordID  string
	Locale    string
	Timeout   time.Duration
}

var opts options

var rootCmd = &cobra.Command{
	Use:          "mediactl",
	Short:        "Inline media backend 命令行工具",
	SilenceUsage: true,
}

var copyPromptCmd = &cobra.Command{
	Use:   "copy-prompt",
	Short: "复制媒体记录的提示词到剪贴板",
	RunE: func(cmd *cobra.Command, args []string) error {
		return copyPrompt(cmd.Context(), opts, clipboard.New(), cmd.OutOrStdout())
	},
}

var regenerateCmd = &cobra.Command{
	Use:   "regenerate",
	Short: "重新生成媒体记录并等待结果",
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := regenerate(cmd.Context(), opts)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), rec.URL)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&opts.Server, "server", "http://localhost:8080", "服务地址")
	rootCmd.PersistentFlags().StringVar(&opts.SessionID, "session", "", "会话ID")
	rootCmd.PersistentFlags().StringVar(&opts.MessageID, "message", "", "消息ID")
	rootCmd.PersistentFlags().StringVar(&opts.RecordID, "record", "", "媒体记录ID")
	rootCmd.PersistentFlags().StringVar(&opts.Locale, "locale", "en", "提示语言")
	rootCmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 5*time.Minute, "请求超时")

	for _, name := range []string{"session", "message", "record"} {
		_ = rootCmd.MarkPersistentFlagRequired(name)
	}

	rootCmd.AddCommand(copyPromptCmd, regenerateCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func recordURL(o options, suffix string) string {
	return fmt.Sprintf("%s/api/media/%s/%s/%s%s", o.Server,
		url.PathEscape(o.SessionID), url.PathEscape(o.MessageID), url.PathEscape(o.RecordID), suffix)
}

func doRecord(ctx context.Context, o options, method, target string) (*model.MediaRecord, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, err
	}

	resp, err := utils.NewHTTPClient(o.Timeout).Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return nil, fmt.Errorf("server returned %d", resp.StatusCode)
	}

	var rec model.MediaRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return &rec, nil
}

type copier interface {
	Copy(text string) (clipboard.Method, error)
}

// copyPrompt copies the stored prompt of one record and prints a localized notice.
func copyPrompt(ctx context.Context, o options, c copier, out io.Writer) error {
	var tr i18n.Translator

	rec, err := doRecord(ctx, o, http.MethodGet, recordURL(o, ""))
	if err != nil {
		fmt.Fprintf(out, "%s: %v\n", tr.T(o.Locale, i18n.CopyPromptFailed), err)
		return err
	}

	method, err := c.Copy(rec.Prompt)
	if err != nil {
		fmt.Fprintf(out, "%s: %v\n", tr.T(o.Locale, i18n.CopyPromptFailed), err)
		return err
	}

	fmt.Fprintf(out, "%s (%s)\n", tr.T(o.Locale, i18n.CopyPromptSuccess), method)
	return nil
}

func regenerate(ctx context.Context, o options) (*model.MediaRecord, error) {
	return doRecord(ctx, o, http.MethodPost, recordURL(o, "/regenerate?wait=true"))
}
