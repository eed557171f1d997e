// Command inspect validates a model artifact and optionally scores a request
// file against it without starting the server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"churnguard/api"
	"churnguard/artifact"
	"churnguard/config"
	"churnguard/logging"
	"churnguard/ml"
	"churnguard/schema"
)

func main() {
	dir := flag.String("dir", "models", "models directory")
	version := flag.String("version", "", "model version or version directory (default: $"+config.ModelVersionEnv+" or "+config.DefaultModelVersion+")")
	table := flag.String("table", "telco", "rename table: telco or identity")
	score := flag.String("score", "", "JSON request file to score, - for stdin")
	threshold := flag.Float64("threshold", ml.DefaultThreshold, "decision threshold")
	list := flag.Bool("list", false, "list available versions and exit")
	flag.Parse()

	// stdout carries the JSON result, so logs go to stderr
	logCfg := logging.DefaultConfig()
	logCfg.Level = "debug"
	logCfg.Format = "console"
	logCfg.Output = "stderr"
	logger, err := logging.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	store := artifact.NewStore(*dir)

	if *list {
		versions, err := store.Versions()
		if err != nil {
			logger.Fatal("failed to list versions", zap.Error(err))
		}
		fmt.Println(strings.Join(versions, "\n"))
		return
	}

	ref := *version
	if ref == "" {
		ref = os.Getenv(config.ModelVersionEnv)
	}
	if ref == "" {
		ref = config.DefaultModelVersion
	}

	model, err := store.Load(ref)
	if err != nil {
		logger.Fatal("failed to load model", zap.String("version", ref), zap.Error(err))
	}
	renames, err := schema.TableByName(*table, model.FeatureNames())
	if err != nil {
		logger.Fatal("failed to build rename table", zap.Error(err))
	}
	service, err := api.NewService(model, renames, api.WithThreshold(*threshold), api.WithLogger(logger))
	if err != nil {
		logger.Fatal("artifact is not servable", zap.Error(err))
	}

	if *score == "" {
		printJSON(map[string]interface{}{
			"version":  service.ModelVersion(),
			"metadata": service.Metadata(),
			"fields":   service.AcceptedFields(),
		})
		return
	}

	in := os.Stdin
	if *score != "-" {
		f, err := os.Open(*score)
		if err != nil {
			logger.Fatal("failed to open request file", zap.Error(err))
		}
		defer f.Close()
		in = f
	}
	req, err := api.DecodePredictRequest(in)
	if err == nil {
		var resp *api.PredictResponse
		if resp, err = service.Predict(context.Background(), req); err == nil {
			printJSON(resp)
			return
		}
	}
	_, body := api.StatusFor(err)
	printJSON(body)
	os.Exit(2)
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}
