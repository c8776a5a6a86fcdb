package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/edugen-studio/internal/models"
	"github.com/noah-isme/edugen-studio/internal/service"
	"github.com/noah-isme/edugen-studio/pkg/config"
	"github.com/noah-isme/edugen-studio/pkg/storage"
)

type options struct {
	backend    string
	timeout    time.Duration
	genTimeout time.Duration
	verbose    bool
	asJSON     bool

	subject    string
	grade      string
	types      string
	difficulty int
	quantity   int

	id     string
	outDir string
}

func main() {
	var opts options
	flag.StringVar(&opts.backend, "backend", "http://localhost:5000", "Generation backend base URL")
	flag.DurationVar(&opts.timeout, "timeout", 30*time.Second, "Timeout for history and download calls")
	flag.DurationVar(&opts.genTimeout, "generation-timeout", 3*time.Minute, "Timeout for generation calls")
	flag.BoolVar(&opts.verbose, "v", false, "Log backend calls")
	flag.BoolVar(&opts.asJSON, "json", false, "Print JSON instead of text")
	flag.StringVar(&opts.subject, "subject", "", "Subject to generate content for")
	flag.StringVar(&opts.grade, "grade", string(models.GradeLowerSecondary), "Grade level")
	flag.StringVar(&opts.types, "types", "qcm", "Comma separated content types")
	flag.IntVar(&opts.difficulty, "difficulty", models.DefaultDifficulty, "Difficulty 1-10")
	flag.IntVar(&opts.quantity, "quantity", 1, "Items per content type")
	flag.StringVar(&opts.id, "id", "", "History record to download")
	flag.StringVar(&opts.outDir, "out", ".", "Directory downloads are written to")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: studio_cli [flags] generate|history|download\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	logr := zap.NewNop()
	if opts.verbose {
		dev, err := zap.NewDevelopment()
		if err != nil {
			log.Fatalf("failed to init logger: %v", err)
		}
		logr = dev
	}
	defer logr.Sync() //nolint:errcheck

	client, err := service.NewBackendClient(config.BackendConfig{
		BaseURL:           opts.backend,
		RequestTimeout:    opts.timeout,
		GenerationTimeout: opts.genTimeout,
	}, nil, nil, logr)
	if err != nil {
		log.Fatalf("invalid backend: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	switch flag.Arg(0) {
	case "generate":
		err = runGenerate(ctx, client, opts, logr, os.Stdout)
	case "history":
		err = runHistory(ctx, client, opts, logr, os.Stdout)
	case "download":
		err = runDownload(ctx, client, opts, logr, os.Stdout)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runGenerate(ctx context.Context, client *service.BackendClient, opts options, logr *zap.Logger, out io.Writer) error {
	forms := service.NewFormService(validator.New(), logr)
	input := models.FormInput{
		Subject:      opts.subject,
		GradeLevel:   models.GradeLevel(opts.grade),
		ContentTypes: parseTypes(opts.types),
		Difficulty:   opts.difficulty,
		Quantity:     opts.quantity,
	}
	state, req, err := forms.Submit(forms.Replace(models.NewFormState(), input))
	if err != nil {
		for field, msg := range state.Errors {
			fmt.Fprintf(out, "%s: %s\n", field, msg)
		}
		return err
	}

	body, err := client.Generate(ctx, *req)
	if err != nil {
		return err
	}
	bundle, err := service.NormalizeBundle(body)
	if err != nil {
		return err
	}
	review := service.RenderBundle(bundle)
	review.Request = req
	review.GeneratedAt = time.Now().UTC()

	if opts.asJSON {
		return printJSON(out, review)
	}
	printReview(out, review)
	return nil
}

func runHistory(ctx context.Context, client *service.BackendClient, opts options, logr *zap.Logger, out io.Writer) error {
	view := service.NewHistoryService(client, logr).Fetch(ctx)
	if opts.asJSON {
		return printJSON(out, view)
	}
	if view.State == models.HistoryError {
		return fmt.Errorf("history: %s", view.Message)
	}
	if view.Message != "" {
		fmt.Fprintln(out, view.Message)
	}
	for _, record := range view.Records {
		tags := make([]string, 0, len(record.ContentTypes))
		for _, tag := range record.ContentTypes {
			tags = append(tags, tag.Title())
		}
		fmt.Fprintf(out, "%-6s %-30s %-16s %s  [%s]\n",
			record.ID, record.Subject, record.GradeLevel, record.CreatedAt.Format("2006-01-02 15:04"), strings.Join(tags, ", "))
	}
	return nil
}

func runDownload(ctx context.Context, client *service.BackendClient, opts options, logr *zap.Logger, out io.Writer) error {
	target, err := storage.NewLocalStorage(opts.outDir)
	if err != nil {
		return err
	}
	spool, err := storage.NewLocalStorage(os.TempDir())
	if err != nil {
		return err
	}
	downloads := service.NewDownloadService(client, spool, nil, nil, logr)
	result, err := downloads.Download(ctx, opts.id, service.NewFileSink(target))
	if err != nil {
		return err
	}
	if opts.asJSON {
		return printJSON(out, result)
	}
	fmt.Fprintf(out, "saved %s (%d bytes)\n", result.Location, result.SizeBytes)
	return nil
}

func parseTypes(raw string) models.ContentTypeSet {
	var tags []models.ContentType
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			tags = append(tags, models.ContentType(part))
		}
	}
	return models.NewContentTypeSet(tags...)
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
