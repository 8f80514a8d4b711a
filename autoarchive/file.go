/* Copyright (c) 2024 Jason Ish
 * All rights reserved.
 *
 * Redistribution and use in source and binary forms, with or without
 * modification, are permitted provided that the following conditions
 * are met:
 *
 * 1. Redistributions of source code must retain the above copyright
 *    notice, this list of conditions and the following disclaimer.
 * 2. Redistributions in binary form must reproduce the above copyright
 *    notice, this list of conditions and the following disclaimer in the
 *    documentation and/or other materials provided with the distribution.
 *
 * THIS SOFTWARE IS PROVIDED ``AS IS'' AND ANY EXPRESS OR IMPLIED
 * WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
 * DISCLAIMED. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY DIRECT,
 * INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES
 * (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
 * SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS INTERRUPTION)
 * HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN CONTRACT,
 * STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE) ARISING
 * IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
 * POSSIBILITY OF SUCH DAMAGE.
 */

package autoarchive

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/jasonish/evecore/log"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

type ruleFile struct {
	Rules []FilterEntry `yaml:"rules"`
}

// LoadFile reads auto-archive rules from a YAML file. A missing file is
// an empty rule set.
func LoadFile(filename string) ([]FilterEntry, error) {
	buf, err := ioutil.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return []FilterEntry{}, nil
		}
		return nil, errors.Wrapf(err, "failed to read %s", filename)
	}
	var file ruleFile
	if err := yaml.Unmarshal(buf, &file); err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", filename)
	}
	entries := make([]FilterEntry, 0, len(file.Rules))
	for _, entry := range file.Rules {
		if err := entry.Validate(); err != nil {
			log.Warning("Ignoring auto-archive rule in %s: %v", filename, err)
			continue
		}
		entries = append(entries, entry.Normalize())
	}
	return entries, nil
}

// SaveFile writes the rules to filename, replacing it atomically.
func SaveFile(filename string, entries []FilterEntry) error {
	buf, err := yaml.Marshal(&ruleFile{Rules: entries})
	if err != nil {
		return err
	}
	tmp, err := ioutil.TempFile(filepath.Dir(filename), ".autoarchive")
	if err != nil {
		return errors.Wrap(err, "failed to create temporary file")
	}
	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), filename)
}

// Store ties a rule set to an optional YAML file. Changes made through the
// store are written to the file, and changes to the file made by others
// are loaded by Watch.
type Store struct {
	Filters  *Filters
	filename string
}

func NewStore(filename string) (*Store, error) {
	store := &Store{
		Filters:  NewFilters(),
		filename: filename,
	}
	if filename != "" {
		if err := store.Reload(); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func (s *Store) Filename() string {
	return s.filename
}

func (s *Store) Reload() error {
	entries, err := LoadFile(s.filename)
	if err != nil {
		return err
	}
	s.Filters.Replace(entries)
	log.Info("Loaded %d auto-archive rules from %s", len(entries), s.filename)
	return nil
}

func (s *Store) save() error {
	if s.filename == "" {
		return nil
	}
	return SaveFile(s.filename, s.Filters.List())
}

// Add adds a rule, returning false if it already exists.
func (s *Store) Add(entry FilterEntry) (bool, error) {
	if err := entry.Validate(); err != nil {
		return false, err
	}
	if !s.Filters.Add(entry) {
		return false, nil
	}
	return true, s.save()
}

// Remove removes a rule, returning false if it did not exist.
func (s *Store) Remove(entry FilterEntry) (bool, error) {
	if !s.Filters.Remove(entry) {
		return false, nil
	}
	return true, s.save()
}

// Watch reloads the rule file whenever it is written, until the context
// is cancelled. The directory is watched rather than the file so editors
// that replace the file by rename are handled.
func (s *Store) Watch(ctx context.Context) error {
	if s.filename == "" {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create file watcher")
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(s.filename)); err != nil {
		return errors.Wrapf(err, "failed to watch %s", s.filename)
	}

	target := filepath.Clean(s.filename)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if err := s.Reload(); err != nil {
				log.Error("Failed to reload auto-archive rules: %v", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warning("Auto-archive rule file watcher error: %v", err)
		}
	}
}
