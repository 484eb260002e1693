package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 60 * time.Second
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/shopassist/data/db/shopassist.db"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = "/usr/local/var/shopassist/data/indices/places"
	}
	if cfg.Index.Backend == "" {
		cfg.Index.Backend = "bleve"
	}
	if cfg.Index.PageSize == 0 {
		cfg.Index.PageSize = 1000
	}
	if cfg.Index.CallTimeout == 0 {
		cfg.Index.CallTimeout = 5 * time.Second
	}
	if cfg.Index.RebuildWorkers == 0 {
		cfg.Index.RebuildWorkers = 1
	}
	if cfg.Index.Elastic.Index == "" {
		cfg.Index.Elastic.Index = "places"
	}
	if cfg.Places.MaxDistanceKm == 0 {
		cfg.Places.MaxDistanceKm = 100
	}
	if cfg.Places.MaxResults == 0 {
		cfg.Places.MaxResults = 100
	}
	if cfg.Places.DefaultDistanceKm == 0 {
		cfg.Places.DefaultDistanceKm = 5
	}
	if cfg.Places.DefaultCount == 0 {
		cfg.Places.DefaultCount = 10
	}
	if cfg.Places.PlaceholderBaseKm == 0 {
		cfg.Places.PlaceholderBaseKm = 5
	}
	if cfg.Places.DistanceFormula == "" {
		cfg.Places.DistanceFormula = "cosines"
	}
	if cfg.Auth.TokenTTL == 0 {
		cfg.Auth.TokenTTL = time.Hour
	}
	if cfg.Recommendations.Expiration == 0 {
		cfg.Recommendations.Expiration = 2 * time.Minute
	}
	if cfg.Recommendations.GenerationDelay == 0 {
		cfg.Recommendations.GenerationDelay = 15 * time.Second
	}
	if cfg.Recommendations.Workers == 0 {
		cfg.Recommendations.Workers = 2
	}
	if cfg.Recommendations.QueueSize == 0 {
		cfg.Recommendations.QueueSize = 100
	}
	if cfg.Recommendations.TemplateID == "" {
		cfg.Recommendations.TemplateID = "template1"
	}
	if cfg.Notifications.MaxDevices == 0 {
		cfg.Notifications.MaxDevices = 10
	}
	if cfg.Notifications.MaxRetries == 0 {
		cfg.Notifications.MaxRetries = 5
	}
	if cfg.Import.Extensions == nil {
		cfg.Import.Extensions = []string{".csv", ".tsv", ".xlsx"}
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Import.Directories) > 0 && cfg.Import.Recursive == nil {
		t := true
		cfg.Import.Recursive = &t
	}
}
