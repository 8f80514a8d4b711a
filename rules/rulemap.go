/* Copyright (c) 2017 Jason Ish
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

// Package rules loads Suricata rule files so the rule text can be
// attached to alerts.
package rules

import (
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jasonish/evecore/eve"
	"github.com/jasonish/evecore/log"
	"github.com/jasonish/go-idsrules"
	"github.com/pkg/errors"
)

func loadRulesFromFile(rules map[uint64]idsrules.Rule, filename string) (int, error) {
	file, err := os.Open(filename)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	ruleReader := idsrules.NewRuleReader(file)

	count := 0

	for {
		rule, err := ruleReader.Next()
		if err != nil {
			if err == io.EOF {
				break
			}
			if parseError, ok := err.(*idsrules.RuleParseError); ok {
				log.Warning("Rule parse error: %v", parseError)
				continue
			}
			return count, errors.Wrapf(err, "failed to read %s", filename)
		}

		if _, ok := rules[rule.Sid]; ok {
			log.Warning("A rule with ID %d already exists.", rule.Sid)
			continue
		}
		rules[rule.Sid] = rule
		count++
	}

	log.Debug("Loaded %d rules from %s", count, filename)

	return count, nil
}

// expand returns the rule files for a path which may be a file, a
// directory of .rules files or a glob.
func expand(path string) []string {
	fileInfo, err := os.Stat(path)
	if err != nil {
		matches, err := filepath.Glob(path)
		if err != nil || len(matches) == 0 {
			log.Warning("No rule files match %s", path)
		}
		return matches
	}
	if !fileInfo.IsDir() {
		return []string{path}
	}
	infos, err := ioutil.ReadDir(path)
	if err != nil {
		log.Warning("Failed to read %s: %v", path, err)
		return nil
	}
	filenames := []string{}
	for _, info := range infos {
		if strings.HasSuffix(info.Name(), ".rules") {
			filenames = append(filenames, filepath.Join(path, info.Name()))
		}
	}
	return filenames
}

type RuleMap struct {
	paths []string
	lock  sync.RWMutex
	rules map[uint64]idsrules.Rule
}

func NewRuleMap(paths []string) *RuleMap {
	ruleMap := &RuleMap{
		paths: paths,
	}
	ruleMap.Reload()
	return ruleMap
}

// Reload re-reads the rule files, replacing the current rules.
func (r *RuleMap) Reload() {
	rules := make(map[uint64]idsrules.Rule)
	for _, path := range r.paths {
		for _, filename := range expand(path) {
			if _, err := loadRulesFromFile(rules, filename); err != nil {
				log.Warning("Failed to load %s: %v", filename, err)
			}
		}
	}
	log.Info("Loaded %d rules", len(rules))

	r.lock.Lock()
	r.rules = rules
	r.lock.Unlock()
}

func (r *RuleMap) Len() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.rules)
}

func (r *RuleMap) FindById(id uint64) *idsrules.Rule {
	if r == nil {
		return nil
	}
	r.lock.RLock()
	defer r.lock.RUnlock()
	if rule, ok := r.rules[id]; ok {
		return &rule
	}
	return nil
}

// Filter implements eve.EveFilter for RuleMap, setting "rule" on alerts to
// the text of the rule that fired.
func (r *RuleMap) Filter(event eve.EveEvent) {
	if event["rule"] != nil {
		return
	}
	ruleId, ok := event.GetAlertSignatureId()
	if !ok {
		return
	}
	if rule := r.FindById(ruleId); rule != nil {
		event["rule"] = rule.Raw
	}
}
