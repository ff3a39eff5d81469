package streamd

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// InitLogger는 tint 핸들러로 기본 slog 로거를 설정한다.
func InitLogger(config *Config) {
	slog.SetDefault(NewLogger(os.Stdout, config.GetSlogLevel()))
}

func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	// 소스 경로를 프로젝트 루트 기준 상대 경로로 줄인다
	_, filename, _, _ := runtime.Caller(0)
	projectRoot := getProjectRoot(filename)

	replaceAttr := func(groups []string, a slog.Attr) slog.Attr {
		if a.Key != slog.SourceKey {
			return a
		}
		source, ok := a.Value.Any().(*slog.Source)
		if !ok {
			return a
		}
		if projectRoot != "" && strings.HasPrefix(source.File, projectRoot+string(os.PathSeparator)) {
			source.File = source.File[len(projectRoot)+1:]
		}
		return slog.Any(a.Key, source)
	}

	handler := tint.NewHandler(w, &tint.Options{
		Level:       level,
		AddSource:   true,
		TimeFormat:  time.RFC3339,
		ReplaceAttr: replaceAttr,
	})
	return slog.New(handler)
}

// getProjectRoot는 이 파일 위치(internal/streamd)에서 두 단계 위를 루트로 본다.
func getProjectRoot(filename string) string {
	if filename == "" {
		return ""
	}
	return filepath.Dir(filepath.Dir(filepath.Dir(filename)))
}
