package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/isurunuwanthilaka/isuma.ai/internal/logging"
	"github.com/isurunuwanthilaka/isuma.ai/internal/models"
	"github.com/isurunuwanthilaka/isuma.ai/internal/services"
	"github.com/isurunuwanthilaka/isuma.ai/internal/storage"
)

type result struct {
	File       string               `json:"file"`
	ResumeURL  string               `json:"resume_url,omitempty"`
	Assessment *models.CVAssessment `json:"assessment"`
}

func main() {
	godotenv.Load()

	provider := flag.String("provider", envOr("LLM_PROVIDER", "gemini"), "scoring oracle provider (gemini|openai)")
	model := flag.String("model", "", "model name (provider default when empty)")
	upload := flag.Bool("upload", false, "store the resume in the blob store before scoring")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall timeout")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: cvscore [flags] <resume.pdf|.docx|.txt>\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	logging.Setup(envOr("ENV", "development"), envOr("LOG_LEVEL", "warn"))

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	path := flag.Arg(0)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	text, err := services.ExtractResumeText(path)
	if err != nil {
		log.Fatal().Err(err).Str("file", path).Msg("failed to read resume")
	}

	out := result{File: filepath.Base(path)}
	if *upload {
		url, err := storeResume(ctx, path)
		if err != nil {
			log.Error().Err(err).Msg("resume upload failed, scoring anyway")
		} else {
			out.ResumeURL = url
		}
	}

	apiKey := os.Getenv("GEMINI_API_KEY")
	if *provider == "openai" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	oracle, err := services.NewOracle(ctx, *provider, apiKey, *model, 1)
	if err != nil {
		log.Fatal().Err(err).Msg("scoring oracle unavailable")
	}
	defer oracle.Close()

	assessment, err := oracle.AssessCV(ctx, text)
	if err != nil {
		log.Fatal().Err(err).Msg("CV assessment failed")
	}
	out.Assessment = assessment

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatal().Err(err).Msg("failed to write result")
	}
}

func storeResume(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	local := storage.NewLocalStore(envOr("STORAGE_PATH", "./uploads"), envOr("PUBLIC_UPLOADS_PREFIX", "/uploads"))
	var store storage.BlobStore = local
	if bucket := os.Getenv("GCS_BUCKET"); bucket != "" {
		gcs, err := storage.NewGCSStore(ctx, bucket, os.Getenv("GCS_CREDENTIALS_FILE"))
		if err != nil {
			log.Warn().Err(err).Msg("GCS unavailable, using local disk")
		} else {
			store = storage.NewFallbackStore(gcs, local)
		}
	}

	key := fmt.Sprintf("resumes/%s%s", uuid.NewString(), filepath.Ext(path))
	return store.Put(ctx, key, contentType, data)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
