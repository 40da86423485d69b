// Package voice maps voice identifiers to display names and tracks
// the session's active voice.
package voice

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// catalogFile mirrors the on-disk catalog layout.
type catalogFile struct {
	TTSSettings struct {
		AvailableVoices map[string]string `json:"available_voices"`
		DefaultVoice    string            `json:"default_voice"`
	} `json:"tts_settings"`
}

// Catalog holds the voice identifier to display name mapping, loaded
// once at startup, plus the currently selected voice.
type Catalog struct {
	voices    map[string]string
	defaultID string

	mu      sync.RWMutex
	current string

	logger zerolog.Logger
}

// defaultVoices is compiled in for deployments without a catalog file.
var defaultVoices = map[string]string{
	"zh-CN-XiaoxiaoNeural": "中文女声-晓晓",
	"zh-CN-YunxiNeural":    "中文男声-云希",
	"zh-CN-YunyangNeural":  "中文男声-云扬",
	"zh-CN-XiaoyiNeural":   "中文女声-晓伊",
	"zh-CN-YunjianNeural":  "中文男声-云健",
	"zh-CN-XiaohanNeural":  "中文女声-晓涵",
	"zh-CN-YunxiaNeural":   "中文女声-云夏",
	"zh-CN-XiaomoNeural":   "中文女声-晓墨",
	"zh-CN-YunfengNeural":  "中文男声-云枫",
	"zh-CN-XiaoxuanNeural": "中文女声-晓萱",
	"zh-CN-YunzeNeural":    "中文男声-云泽",
}

// LoadCatalog reads a catalog file, falling back to the built-in
// voice set when path is empty. An unreadable or malformed file is an
// error; a missing default voice falls back to defaultID.
func LoadCatalog(path, defaultID string, logger zerolog.Logger) (*Catalog, error) {
	voices := defaultVoices

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read voice catalog %q: %w", path, err)
		}

		var file catalogFile
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse voice catalog %q: %w", path, err)
		}
		if len(file.TTSSettings.AvailableVoices) > 0 {
			voices = file.TTSSettings.AvailableVoices
		}
		if file.TTSSettings.DefaultVoice != "" {
			defaultID = file.TTSSettings.DefaultVoice
		}
	}

	if _, ok := voices[defaultID]; !ok {
		return nil, fmt.Errorf("default voice %q not in catalog", defaultID)
	}

	logger.Info().Int("voices", len(voices)).Str("default", defaultID).Msg("Voice catalog loaded")

	return &Catalog{
		voices:    voices,
		defaultID: defaultID,
		current:   defaultID,
		logger:    logger,
	}, nil
}

// Has reports whether the identifier is in the catalog.
func (c *Catalog) Has(id string) bool {
	_, ok := c.voices[id]
	return ok
}

// SetVoice selects a voice by identifier. Unknown identifiers fall
// back to the default with a logged warning; the effective identifier
// is returned.
func (c *Catalog) SetVoice(id string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if name, ok := c.voices[id]; ok {
		c.current = id
		c.logger.Info().Str("voice", id).Str("name", name).Msg("Voice selected")
	} else {
		c.logger.Warn().Str("voice", id).Str("fallback", c.defaultID).Msg("Unknown voice, using default")
		c.current = c.defaultID
	}
	return c.current
}

// Current returns the active voice identifier.
func (c *Catalog) Current() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Default returns the default voice identifier.
func (c *Catalog) Default() string {
	return c.defaultID
}

// Voices returns a copy of the identifier to display name mapping.
func (c *Catalog) Voices() map[string]string {
	out := make(map[string]string, len(c.voices))
	for id, name := range c.voices {
		out[id] = name
	}
	return out
}
