package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/text/encoding/charmap"

	"github.com/valpere/gtrans/internal"
	"github.com/valpere/gtrans/internal/translator"
)

type fakeEngine struct {
	mu    sync.Mutex
	calls []translator.TranslateRequest
}

func (f *fakeEngine) Translate(ctx context.Context, req translator.TranslateRequest) (*translator.ServiceResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()

	if strings.Contains(req.Text, "FAIL") {
		return &translator.ServiceResult{ServiceName: "fake", Error: "boom"}, errors.New("boom")
	}
	return &translator.ServiceResult{ServiceName: "fake", TranslatedText: strings.ToUpper(req.Text)}, nil
}

func (f *fakeEngine) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeMemory struct {
	mu      sync.Mutex
	entries map[string]string
}

func newFakeMemory() *fakeMemory {
	return &fakeMemory{entries: make(map[string]string)}
}

func (m *fakeMemory) GetCachedTranslation(ctx context.Context, sourceText, sourceLang, targetLang string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	text, ok := m.entries[sourceLang+"|"+targetLang+"|"+sourceText]
	return text, ok, nil
}

func (m *fakeMemory) SaveToMemory(ctx context.Context, sourceText, sourceLang, targetLang, finalText, serviceUsed string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[sourceLang+"|"+targetLang+"|"+sourceText] = finalText
	return nil
}

type fakeDetector struct{ lang string }

func (d fakeDetector) DetectISO(text string) (string, bool) {
	return d.lang, d.lang != ""
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTranslator(t *testing.T, fs afero.Fs, engine Engine, cfg Config) *Translator {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = quietLogger()
	}
	tr, err := New(fs, engine, cfg)
	if err != nil {
		t.Fatalf("failed to create translator: %v", err)
	}
	return tr
}

func writeFiles(t *testing.T, fs afero.Fs, files map[string]string) {
	t.Helper()
	for path, content := range files {
		if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := afero.WriteFile(fs, path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func readFile(t *testing.T, fs afero.Fs, path string) string {
	t.Helper()
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}

func request(ext string) internal.TranslationRequest {
	return internal.TranslationRequest{
		ID:         "run-1",
		SourceLang: "de",
		TargetLang: "en",
		SourceRoot: "/src",
		OutputRoot: "/out",
		Extension:  ext,
	}
}

func TestTranslateTree_FilterAndNesting(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/src/a/b/doc.txt":  "hallo\nwelt\n",
		"/src/a/c/note.md":  "notiz",
		"/src/top.txt":      "oben",
		"/src/a/b/deep/x.y": "skip",
	})

	engine := &fakeEngine{}
	report, err := newTranslator(t, fs, engine, Config{}).TranslateTree(context.Background(), request("txt"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := readFile(t, fs, "/out/a/b/doc.en"); got != "HALLO\nWELT\n" {
		t.Errorf("unexpected output %q", got)
	}
	if got := readFile(t, fs, "/out/top.en"); got != "OBEN" {
		t.Errorf("unexpected output %q", got)
	}
	for _, absent := range []string{"/out/a/c", "/out/a/c/note.en", "/out/a/b/deep"} {
		if ok, _ := afero.Exists(fs, absent); ok {
			t.Errorf("expected %s not to exist", absent)
		}
	}

	if report.Translated != 2 || report.Failed != 0 || report.Total() != 2 {
		t.Errorf("unexpected report counts %+v", report)
	}
	if engine.callCount() != 2 {
		t.Errorf("expected 2 engine calls, got %d", engine.callCount())
	}
	if report.Err() != nil {
		t.Errorf("expected no error, got %v", report.Err())
	}
}

func TestTranslateTree_ExtensionWithDot(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{"/src/doc.txt": "x", "/src/doc.md": "y"})

	report, err := newTranslator(t, fs, &fakeEngine{}, Config{}).TranslateTree(context.Background(), request(".txt"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Translated != 1 || readFile(t, fs, "/out/doc.en") != "X" {
		t.Errorf("expected only doc.txt to be translated, got %+v", report.Results())
	}
}

func TestTranslateTree_NoFilterTranslatesEverything(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/src/readme":   "kein",
		"/src/.hidden":  "versteckt",
		"/src/sub/a.md": "a",
	})

	report, err := newTranslator(t, fs, &fakeEngine{}, Config{}).TranslateTree(context.Background(), request(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for path, want := range map[string]string{
		"/out/readme.en":  "KEIN",
		"/out/.hidden.en": "VERSTECKT",
		"/out/sub/a.en":   "A",
	} {
		if got := readFile(t, fs, path); got != want {
			t.Errorf("%s: expected %q, got %q", path, want, got)
		}
	}
	if report.Translated != 3 {
		t.Errorf("expected 3 translated, got %d", report.Translated)
	}
}

func TestTranslateTree_OneFailureOfFive(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/src/1.txt": "eins",
		"/src/2.txt": "zwei",
		"/src/3.txt": "FAIL",
		"/src/4.txt": "vier",
		"/src/5.txt": "fünf",
	})

	report, err := newTranslator(t, fs, &fakeEngine{}, Config{}).TranslateTree(context.Background(), request("txt"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.Translated != 4 || report.Failed != 1 {
		t.Errorf("expected 4 translated and 1 failed, got %+v", report)
	}
	failures := report.Failures()
	if len(failures) != 1 || failures[0].SourcePath != "/src/3.txt" || failures[0].Stage != StageTranslate {
		t.Errorf("unexpected failures %+v", failures)
	}
	if failures[0].Service != "fake" {
		t.Errorf("expected failing service to be reported, got %q", failures[0].Service)
	}
	if ok, _ := afero.Exists(fs, "/out/3.en"); ok {
		t.Error("expected no output for failed file")
	}
	if err := report.Err(); err == nil || !strings.Contains(err.Error(), "/src/3.txt") {
		t.Errorf("expected joined error naming the file, got %v", err)
	}

	results := report.Results()
	for i, res := range results {
		if want := fmt.Sprintf("/src/%d.txt", i+1); res.SourcePath != want {
			t.Errorf("result %d: expected %s, got %s", i, want, res.SourcePath)
		}
	}
}

func TestTranslateTree_FailFast(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/src/a.txt": "a",
		"/src/b.txt": "FAIL",
		"/src/c.txt": "c",
	})

	engine := &fakeEngine{}
	report, err := newTranslator(t, fs, engine, Config{FailFast: true}).TranslateTree(context.Background(), request("txt"))
	if err == nil {
		t.Fatal("expected error with fail-fast")
	}
	if !strings.Contains(err.Error(), "/src/b.txt") {
		t.Errorf("expected error naming the file, got %v", err)
	}
	if engine.callCount() != 2 {
		t.Errorf("expected the batch to stop after the failure, got %d calls", engine.callCount())
	}
	if ok, _ := afero.Exists(fs, "/out/c.en"); ok {
		t.Error("expected c.txt not to be translated")
	}
	if report.Translated != 1 || report.Failed != 1 {
		t.Errorf("unexpected report %+v", report)
	}
}

func TestTranslateTree_Idempotent(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/src/a/doc.txt": "eins\n\nzwei\n",
		"/src/b.txt":     "drei",
	})
	tr := newTranslator(t, fs, &fakeEngine{}, Config{})

	if _, err := tr.TranslateTree(context.Background(), request("")); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	first := readFile(t, fs, "/out/a/doc.en")

	writeFiles(t, fs, map[string]string{"/out/b.en": "stale"})
	if _, err := tr.TranslateTree(context.Background(), request("")); err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	if second := readFile(t, fs, "/out/a/doc.en"); second != first {
		t.Errorf("expected identical output, got %q and %q", first, second)
	}
	if got := readFile(t, fs, "/out/b.en"); got != "DREI" {
		t.Errorf("expected existing output to be overwritten, got %q", got)
	}
}

func TestTranslateTree_CollidingOutputs(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/src/a.md":  "from md",
		"/src/a.txt": "from txt",
	})

	report, err := newTranslator(t, fs, &fakeEngine{}, Config{Workers: 4}).TranslateTree(context.Background(), request(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Translated != 2 {
		t.Errorf("expected both files to be processed, got %+v", report)
	}
	if got := readFile(t, fs, "/out/a.en"); got != "FROM TXT" {
		t.Errorf("expected the last file in walk order to win, got %q", got)
	}
}

func TestTranslateTree_Workers(t *testing.T) {
	fs := afero.NewMemMapFs()
	files := make(map[string]string)
	for i := 0; i < 20; i++ {
		files[fmt.Sprintf("/src/d%d/f%02d.txt", i%3, i)] = fmt.Sprintf("text %d", i)
	}
	writeFiles(t, fs, files)

	var hooked atomic.Int32
	report, err := newTranslator(t, fs, &fakeEngine{}, Config{
		Workers:  8,
		OnResult: func(FileResult) { hooked.Add(1) },
	}).TranslateTree(context.Background(), request("txt"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.Translated != 20 {
		t.Errorf("expected 20 translated, got %d", report.Translated)
	}
	if hooked.Load() != 20 {
		t.Errorf("expected 20 hook calls, got %d", hooked.Load())
	}
	for path, content := range files {
		out := strings.Replace(strings.TrimSuffix(path, ".txt")+".en", "/src/", "/out/", 1)
		if got := readFile(t, fs, out); got != strings.ToUpper(content) {
			t.Errorf("%s: expected %q, got %q", out, strings.ToUpper(content), got)
		}
	}
}

func TestTranslateTree_Resume(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/src/a.txt": "a",
		"/src/b.txt": "b",
	})

	engine := &fakeEngine{}
	report, err := newTranslator(t, fs, engine, Config{
		Completed: map[string]bool{"/src/a.txt": true},
	}).TranslateTree(context.Background(), request("txt"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.Skipped != 1 || report.Translated != 1 {
		t.Errorf("unexpected report %+v", report)
	}
	if engine.callCount() != 1 {
		t.Errorf("expected 1 engine call, got %d", engine.callCount())
	}
	if ok, _ := afero.Exists(fs, "/out/a.en"); ok {
		t.Error("expected skipped file not to be written")
	}
}

func TestTranslateTree_Memory(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{"/src/a.txt": "hallo"})

	engine := &fakeEngine{}
	tr := newTranslator(t, fs, engine, Config{Memory: newFakeMemory()})

	if _, err := tr.TranslateTree(context.Background(), request("")); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	report, err := tr.TranslateTree(context.Background(), request(""))
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	if report.Cached != 1 {
		t.Errorf("expected cached result, got %+v", report.Results())
	}
	if engine.callCount() != 1 {
		t.Errorf("expected the engine to be called once, got %d", engine.callCount())
	}
	if got := readFile(t, fs, "/out/a.en"); got != "HALLO" {
		t.Errorf("unexpected output %q", got)
	}
}

func TestTranslateTree_AutoDetect(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{"/src/a.txt": "Guten Tag"})

	engine := &fakeEngine{}
	req := request("")
	req.SourceLang = "auto"

	if _, err := newTranslator(t, fs, engine, Config{Detector: fakeDetector{lang: "de"}}).TranslateTree(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if engine.calls[0].SourceLang != "de" {
		t.Errorf("expected detected language, got %q", engine.calls[0].SourceLang)
	}

	engine = &fakeEngine{}
	if _, err := newTranslator(t, fs, engine, Config{Detector: fakeDetector{}}).TranslateTree(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if engine.calls[0].SourceLang != "auto" {
		t.Errorf("expected auto to be kept when detection fails, got %q", engine.calls[0].SourceLang)
	}
}

func TestTranslateTree_Encoding(t *testing.T) {
	fs := afero.NewMemMapFs()
	encoded, err := charmap.Windows1251.NewEncoder().String("Привіт")
	if err != nil {
		t.Fatal(err)
	}
	writeFiles(t, fs, map[string]string{"/src/a.txt": encoded})

	engine := &fakeEngine{}
	if _, err := newTranslator(t, fs, engine, Config{Encoding: "windows-1251"}).TranslateTree(context.Background(), request("")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if engine.calls[0].Text != "Привіт" {
		t.Errorf("expected decoded text, got %q", engine.calls[0].Text)
	}
	if got := readFile(t, fs, "/out/a.en"); got != "ПРИВІТ" {
		t.Errorf("expected UTF-8 output, got %q", got)
	}
}

func TestTranslateTree_InvalidUTF8(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{"/src/a.txt": "caf\xe9"})

	report, err := newTranslator(t, fs, &fakeEngine{}, Config{}).TranslateTree(context.Background(), request(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	failures := report.Failures()
	if len(failures) != 1 || failures[0].Stage != StageRead {
		t.Errorf("expected a read failure, got %+v", failures)
	}
}

func TestNew_UnknownEncoding(t *testing.T) {
	if _, err := New(afero.NewMemMapFs(), &fakeEngine{}, Config{Encoding: "klingon"}); err == nil {
		t.Error("expected error for unknown encoding")
	}
}

func TestTranslateTree_OutputInsideSource(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/src/a.txt":       "a",
		"/src/out/old.txt": "old",
		"/src/other/b.txt": "b",
	})

	req := request("txt")
	req.OutputRoot = "/src/out"

	engine := &fakeEngine{}
	report, err := newTranslator(t, fs, engine, Config{}).TranslateTree(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Translated != 2 || engine.callCount() != 2 {
		t.Errorf("expected the output directory to be skipped, got %+v", report.Results())
	}
	if got := readFile(t, fs, "/src/out/other/b.en"); got != "B" {
		t.Errorf("unexpected output %q", got)
	}
}

func TestTranslateTree_BadSourceRoot(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{"/file.txt": "x"})
	tr := newTranslator(t, fs, &fakeEngine{}, Config{})

	req := request("")
	req.SourceRoot = "/missing"
	if _, err := tr.TranslateTree(context.Background(), req); err == nil {
		t.Error("expected error for missing source root")
	}

	req.SourceRoot = "/file.txt"
	if _, err := tr.TranslateTree(context.Background(), req); err == nil {
		t.Error("expected error for file as source root")
	}
}

func TestTranslateTree_MkdirFailure(t *testing.T) {
	base := afero.NewMemMapFs()
	writeFiles(t, base, map[string]string{"/src/a/doc.txt": "x"})

	report, err := newTranslator(t, afero.NewReadOnlyFs(base), &fakeEngine{}, Config{}).TranslateTree(context.Background(), request(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	failures := report.Failures()
	if len(failures) != 1 || failures[0].Stage != StageMkdir {
		t.Errorf("expected a mkdir failure, got %+v", failures)
	}
}

func TestTranslateTree_WriteFailure(t *testing.T) {
	base := afero.NewMemMapFs()
	writeFiles(t, base, map[string]string{"/src/doc.txt": "x"})
	if err := base.MkdirAll("/out", 0o755); err != nil {
		t.Fatal(err)
	}

	report, err := newTranslator(t, afero.NewReadOnlyFs(base), &fakeEngine{}, Config{}).TranslateTree(context.Background(), request(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	failures := report.Failures()
	if len(failures) != 1 || failures[0].Stage != StageWrite {
		t.Errorf("expected a write failure, got %+v", failures)
	}
}

func TestTranslateTree_Cancelled(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{"/src/a.txt": "a", "/src/b.txt": "b"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine := &fakeEngine{}
	_, err := newTranslator(t, fs, engine, Config{}).TranslateTree(ctx, request(""))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if engine.callCount() != 0 {
		t.Errorf("expected no engine calls, got %d", engine.callCount())
	}
}

func TestTranslateTree_SymlinkedDirectoryNotFollowed(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "src")
	elsewhere := filepath.Join(tmp, "elsewhere")
	for _, dir := range []string{src, elsewhere} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	os.WriteFile(filepath.Join(src, "a.txt"), []byte("a"), 0o644)
	os.WriteFile(filepath.Join(elsewhere, "b.txt"), []byte("b"), 0o644)
	if err := os.Symlink(elsewhere, filepath.Join(src, "link")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	req := request("txt")
	req.SourceRoot = src
	req.OutputRoot = filepath.Join(tmp, "out")

	engine := &fakeEngine{}
	report, err := newTranslator(t, afero.NewOsFs(), engine, Config{}).TranslateTree(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Translated != 1 || report.Failed != 0 {
		t.Errorf("expected only a.txt to be translated, got %+v", report.Results())
	}
	if _, err := os.Stat(filepath.Join(tmp, "out", "a.en")); err != nil {
		t.Errorf("expected output file: %v", err)
	}
}

func TestTranslateTree_BrokenSymlinkReported(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "src")
	if err := os.MkdirAll(src, 0o755); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(src, "a.txt"), []byte("a"), 0o644)
	if err := os.Symlink(filepath.Join(tmp, "missing.txt"), filepath.Join(src, "broken.txt")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	req := request("txt")
	req.SourceRoot = src
	req.OutputRoot = filepath.Join(tmp, "out")

	report, err := newTranslator(t, afero.NewOsFs(), &fakeEngine{}, Config{}).TranslateTree(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Total() != 2 || report.Translated != 1 || report.Failed != 1 {
		t.Fatalf("expected one translated and one failed file, got %+v", report.Results())
	}
	failure := report.Failures()[0]
	if failure.SourcePath != filepath.Join(src, "broken.txt") || failure.Stage != StageRead {
		t.Errorf("unexpected failure %+v", failure)
	}

	_, err = newTranslator(t, afero.NewOsFs(), &fakeEngine{}, Config{FailFast: true}).TranslateTree(context.Background(), req)
	if err == nil || !strings.Contains(err.Error(), "broken.txt") {
		t.Errorf("expected fail-fast error naming broken.txt, got %v", err)
	}
}

func TestTranslateOne(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{"/base/x/y/file.tar.gz": "inhalt"})

	res := newTranslator(t, fs, &fakeEngine{}, Config{}).TranslateOne(context.Background(), request(""), "/base", "/base/x/y/file.tar.gz")
	if res.Status != StatusTranslated {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.OutputPath != "/out/x/y/file.tar.en" {
		t.Errorf("unexpected output path %q", res.OutputPath)
	}
	if got := readFile(t, fs, "/out/x/y/file.tar.en"); got != "INHALT" {
		t.Errorf("unexpected output %q", got)
	}
}

func TestTranslateOne_OutsideBase(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{"/other/a.txt": "a"})

	res := newTranslator(t, fs, &fakeEngine{}, Config{}).TranslateOne(context.Background(), request(""), "/base", "/other/a.txt")
	if !res.Failed() {
		t.Errorf("expected failure for file outside base, got %+v", res)
	}
}
