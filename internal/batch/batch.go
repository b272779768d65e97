// Package batch translates a directory tree file by file, mirroring the
// tree under an output directory.
package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/valpere/gtrans/internal"
	"github.com/valpere/gtrans/internal/fsutil"
	"github.com/valpere/gtrans/internal/metrics"
	"github.com/valpere/gtrans/internal/mirror"
	"github.com/valpere/gtrans/internal/translator"
)

const (
	dirPerm  os.FileMode = 0o755
	filePerm os.FileMode = 0o644
)

// Engine translates the full text of one file.
type Engine interface {
	Translate(ctx context.Context, req translator.TranslateRequest) (*translator.ServiceResult, error)
}

// Memory is a translation memory consulted before the engine is called.
type Memory interface {
	GetCachedTranslation(ctx context.Context, sourceText, sourceLang, targetLang string) (string, bool, error)
	SaveToMemory(ctx context.Context, sourceText, sourceLang, targetLang, finalText, serviceUsed string) error
}

// Detector resolves the "auto" source language per file.
type Detector interface {
	DetectISO(text string) (string, bool)
}

type Config struct {
	// Workers bounds the number of files translated at once. Default 1.
	Workers int
	// FailFast aborts the batch on the first failed file.
	FailFast bool
	// Verbose logs per-file progress at Info instead of Debug.
	Verbose bool
	// Encoding is a WHATWG label for decoding source files. Default UTF-8.
	Encoding string
	// Completed lists source paths to skip, e.g. from a resumed run.
	Completed map[string]bool

	Memory   Memory
	Detector Detector
	Logger   *logrus.Logger
	Metrics  *metrics.Collector
	// OnResult is called for every file result, possibly concurrently.
	OnResult func(FileResult)
}

type Translator struct {
	fs       afero.Fs
	engine   Engine
	config   Config
	logger   *logrus.Logger
	encoding encoding.Encoding
	trace    logrus.Level
}

func New(fs afero.Fs, engine Engine, config Config) (*Translator, error) {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	logger := config.Logger
	if logger == nil {
		logger = logrus.New()
	}

	t := &Translator{
		fs:     fs,
		engine: engine,
		config: config,
		logger: logger,
		trace:  logrus.DebugLevel,
	}
	if config.Verbose {
		t.trace = logrus.InfoLevel
	}

	if config.Encoding != "" {
		enc, err := htmlindex.Get(config.Encoding)
		if err != nil {
			return nil, fmt.Errorf("unsupported encoding %q: %w", config.Encoding, err)
		}
		// UTF-8 is validated strictly instead of being decoded with replacement.
		if name, _ := htmlindex.Name(enc); name != "utf-8" {
			t.encoding = enc
		}
	}

	return t, nil
}

// job is a group of source files that map to the same output path. Its
// files are translated in order by a single worker.
type job struct {
	output string
	files  []string
	seqs   []int
}

// TranslateTree translates every matching file below req.SourceRoot into
// req.OutputRoot. Per-file failures are collected in the report; the
// returned error is reserved for an unusable source root, cancellation and,
// with FailFast, the first failure.
func (t *Translator) TranslateTree(ctx context.Context, req internal.TranslationRequest) (*Report, error) {
	report := &Report{}
	filter := strings.TrimPrefix(req.Extension, ".")

	info, err := t.fs.Stat(req.SourceRoot)
	if err != nil {
		return report, fmt.Errorf("failed to read input directory: %w", err)
	}
	if !info.IsDir() {
		return report, fmt.Errorf("input %s is not a directory", req.SourceRoot)
	}

	jobs, err := t.collect(req, filter, report)
	if err != nil {
		return report, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.config.Workers)

	for _, j := range jobs {
		if gctx.Err() != nil {
			break
		}
		j := j
		g.Go(func() error {
			for i, src := range j.files {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				res := t.translateFile(gctx, req, src, j.output)
				res.seq = j.seqs[i]
				t.record(report, res)
				if res.Failed() && t.config.FailFast {
					return fmt.Errorf("%s: %w", src, res.Err)
				}
			}
			return nil
		})
	}

	err = g.Wait()
	report.sort()

	if err != nil && t.config.FailFast {
		return report, err
	}
	if ctx.Err() != nil {
		return report, ctx.Err()
	}
	return report, nil
}

// collect walks the source tree in lexical order and groups matching files
// into jobs. Resumed files are recorded as skipped straight away.
func (t *Translator) collect(req internal.TranslationRequest, filter string, report *Report) ([]*job, error) {
	root := filepath.Clean(req.SourceRoot)
	outRoot := filepath.Clean(req.OutputRoot)

	var jobs []*job
	byOutput := make(map[string]*job)
	seq := 0

	walkErr := afero.Walk(t.fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			t.logger.WithError(err).WithField("file", path).Warn("Failed to read directory entry")
			seq++
			res := FileResult{SourcePath: path, Status: StatusFailed, Stage: StageRead, Err: err, seq: seq}
			t.record(report, res)
			if t.config.FailFast {
				return fmt.Errorf("%s: %w", path, err)
			}
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if info.IsDir() {
			if path != root && filepath.Clean(path) == outRoot {
				t.logger.WithField("dir", path).Debug("Skipping output directory inside input tree")
				return filepath.SkipDir
			}
			return nil
		}

		var linkErr error
		if info.Mode()&os.ModeSymlink != 0 {
			target, err := t.fs.Stat(path)
			if err == nil && target.IsDir() {
				t.logger.WithField("dir", path).Debug("Skipping symbolic link to directory")
				return nil
			}
			linkErr = err
		}

		if !mirror.Matches(info.Name(), filter) {
			return nil
		}

		seq++
		if linkErr != nil {
			err := fmt.Errorf("broken symbolic link: %w", linkErr)
			t.record(report, FileResult{SourcePath: path, Status: StatusFailed, Stage: StageRead, Err: err, seq: seq})
			if t.config.FailFast {
				return fmt.Errorf("%s: %w", path, err)
			}
			return nil
		}
		m, err := mirror.Map(root, path, outRoot, req.TargetLang)
		if err != nil {
			t.record(report, FileResult{SourcePath: path, Status: StatusFailed, Stage: StageRead, Err: err, seq: seq})
			return nil
		}
		out := m.Output

		if t.config.Completed[path] {
			t.record(report, FileResult{SourcePath: path, OutputPath: out, Status: StatusSkipped, seq: seq})
			return nil
		}

		if j, ok := byOutput[out]; ok {
			t.logger.WithFields(logrus.Fields{
				"file":   path,
				"other":  j.files[0],
				"output": out,
			}).Warn("Several files map to the same output; the last one wins")
			j.files = append(j.files, path)
			j.seqs = append(j.seqs, seq)
			return nil
		}

		j := &job{output: out, files: []string{path}, seqs: []int{seq}}
		byOutput[out] = j
		jobs = append(jobs, j)
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("failed to walk input directory: %w", walkErr)
	}

	return jobs, nil
}

// TranslateOne translates a single file below baseDir into req.OutputRoot.
// The result is returned only; it is not counted in any report.
func (t *Translator) TranslateOne(ctx context.Context, req internal.TranslationRequest, baseDir, inFile string) FileResult {
	out, err := mirror.OutputPath(baseDir, inFile, req.OutputRoot, req.TargetLang)
	if err != nil {
		return FileResult{SourcePath: inFile, Status: StatusFailed, Stage: StageRead, Err: err}
	}
	return t.translateFile(ctx, req, inFile, out)
}

func (t *Translator) translateFile(ctx context.Context, req internal.TranslationRequest, inFile, outFile string) FileResult {
	start := time.Now()
	res := FileResult{SourcePath: inFile, OutputPath: outFile}
	log := t.logger.WithFields(logrus.Fields{"file": inFile, "output": outFile})

	fail := func(stage Stage, err error) FileResult {
		res.Status = StatusFailed
		res.Stage = stage
		res.Err = err
		res.Latency = time.Since(start)
		return res
	}

	log.Log(t.trace, "Translating file")

	text, err := t.readText(inFile)
	if err != nil {
		return fail(StageRead, err)
	}

	sourceLang := req.SourceLang
	if strings.EqualFold(sourceLang, "auto") && t.config.Detector != nil {
		if detected, ok := t.config.Detector.DetectISO(text); ok {
			sourceLang = detected
			log.WithField("source_lang", detected).Debug("Detected source language")
		}
	}

	translated, service, cached, err := t.translateText(ctx, text, sourceLang, req.TargetLang, log)
	res.Service = service
	if err != nil {
		return fail(StageTranslate, err)
	}

	status, err := fsutil.EnsureDir(t.fs, filepath.Dir(outFile), dirPerm)
	if err != nil {
		return fail(StageMkdir, err)
	}
	log.WithField("dir", status.String()).Debug("Output directory ready")

	if err := afero.WriteFile(t.fs, outFile, []byte(strings.ToValidUTF8(translated, "\uFFFD")), filePerm); err != nil {
		return fail(StageWrite, fmt.Errorf("failed to write output: %w", err))
	}

	res.Status = StatusTranslated
	if cached {
		res.Status = StatusCached
	}
	res.Latency = time.Since(start)

	log.WithFields(logrus.Fields{
		"service": res.Service,
		"status":  res.Status,
		"latency": res.Latency.Round(time.Millisecond),
	}).Log(t.trace, "Translated file")

	return res
}

func (t *Translator) readText(path string) (string, error) {
	data, err := afero.ReadFile(t.fs, path)
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}

	if t.encoding != nil {
		decoded, err := t.encoding.NewDecoder().Bytes(data)
		if err != nil {
			return "", fmt.Errorf("failed to decode input: %w", err)
		}
		return string(decoded), nil
	}

	if !utf8.Valid(data) {
		return "", errors.New("input is not valid UTF-8, set --encoding")
	}
	return string(data), nil
}

// translateText consults the memory first and stores fresh translations.
func (t *Translator) translateText(ctx context.Context, text, sourceLang, targetLang string, log *logrus.Entry) (string, string, bool, error) {
	memory := t.config.Memory

	if memory != nil {
		cached, found, err := memory.GetCachedTranslation(ctx, text, sourceLang, targetLang)
		if err != nil {
			log.WithError(err).Warn("Translation memory lookup failed")
		} else if found {
			return cached, "memory", true, nil
		}
	}

	start := time.Now()
	result, err := t.engine.Translate(ctx, translator.TranslateRequest{
		Text:       text,
		SourceLang: sourceLang,
		TargetLang: targetLang,
	})
	var service string
	if result != nil {
		service = result.ServiceName
	}
	if err != nil {
		return "", service, false, err
	}

	t.config.Metrics.RecordTranslation(service, len(text), time.Since(start))

	if memory != nil {
		if err := memory.SaveToMemory(ctx, text, sourceLang, targetLang, result.TranslatedText, service); err != nil {
			log.WithError(err).Warn("Failed to save translation memory")
		}
	}

	return result.TranslatedText, service, false, nil
}

func (t *Translator) record(report *Report, res FileResult) {
	report.add(res)
	t.config.Metrics.RecordFile(string(res.Status))

	if res.Failed() {
		t.logger.WithFields(logrus.Fields{
			"file":  res.SourcePath,
			"stage": res.Stage,
		}).WithError(res.Err).Warn("File failed")
	}

	if t.config.OnResult != nil {
		t.config.OnResult(res)
	}
}
