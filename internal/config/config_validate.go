// Marquee - Personalized Virtual Libraries for Media Servers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tomtom215/marquee/internal/models"
	"github.com/tomtom215/marquee/internal/validation"
)

// ErrMissingEmbeddingKey is returned when embeddings are enabled against the
// hosted OpenAI endpoint without an API key.
var ErrMissingEmbeddingKey = errors.New("embedding.api_key is required for api.openai.com")

// Validate checks struct tags first, then cross-field rules.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateMediaServer,
		c.validateEmbedding,
		c.validateSections,
		c.validateRecommend,
		c.validateLibrary,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateMediaServer() error {
	c.MediaServer.Type = strings.ToLower(strings.TrimSpace(c.MediaServer.Type))
	c.MediaServer.URL = strings.TrimSuffix(c.MediaServer.URL, "/")
	if err := validation.ValidateStruct(&c.MediaServer); err != nil {
		return fmt.Errorf("media_server: %w", err)
	}
	return nil
}

func (c *Config) validateEmbedding() error {
	if !c.Embedding.Enabled {
		return nil
	}
	if err := validation.ValidateStruct(&c.Embedding); err != nil {
		return fmt.Errorf("embedding: %w", err)
	}
	if c.Embedding.APIKey == "" && strings.Contains(c.Embedding.BaseURL, "api.openai.com") {
		return ErrMissingEmbeddingKey
	}
	return nil
}

func (c *Config) validateSections() error {
	sections := map[string]any{
		"database":          &c.Database,
		"continue_watching": &c.ContinueWatching,
		"catalog":           &c.Catalog,
		"server":            &c.Server,
	}
	for _, name := range []string{"database", "continue_watching", "catalog", "server"} {
		if err := validation.ValidateStruct(sections[name]); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func (c *Config) validateRecommend() error {
	if err := validation.ValidateStruct(&c.Recommend); err != nil {
		return fmt.Errorf("recommend: %w", err)
	}
	for userID, w := range c.Recommend.UserWeights {
		if w.Similarity < 0 || w.Novelty < 0 || w.Rating < 0 {
			return fmt.Errorf("recommend.user_weights[%s]: weights must be non-negative", userID)
		}
	}
	for _, kind := range c.Recommend.MediaKinds {
		k, err := models.ParseMediaKind(kind)
		if err != nil {
			return fmt.Errorf("recommend.media_kinds: %w", err)
		}
		if k == models.KindEpisode {
			return fmt.Errorf("recommend.media_kinds: episode profiles are not supported, got %q", kind)
		}
	}
	return nil
}

func (c *Config) validateLibrary() error {
	if err := validation.ValidateStruct(&c.Library); err != nil {
		return fmt.Errorf("library: %w", err)
	}
	if !strings.Contains(c.Library.NameTemplate, "{user}") {
		return fmt.Errorf("library.name_template must contain {user}, got %q", c.Library.NameTemplate)
	}
	if !strings.Contains(c.Library.NameTemplate, "{kind}") {
		return fmt.Errorf("library.name_template must contain {kind}, got %q", c.Library.NameTemplate)
	}
	return nil
}

// LibraryName renders a name template.
func LibraryName(template, userName, kind string) string {
	r := strings.NewReplacer("{user}", userName, "{kind}", kindLabel(kind))
	return r.Replace(template)
}

func kindLabel(kind string) string {
	switch kind {
	case string(models.KindMovie):
		return "Movies"
	case string(models.KindSeries):
		return "Shows"
	case "":
		return ""
	default:
		return strings.ToUpper(kind[:1]) + kind[1:]
	}
}
