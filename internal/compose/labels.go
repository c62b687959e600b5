package compose

import (
	"embed"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/bassista/go_chatwall/internal/logger"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var localeFS embed.FS

// Languages with a label catalog. The first entry is the fallback.
var supportedLanguages = []language.Tag{
	language.English,
	language.Portuguese,
	language.Spanish,
	language.French,
	language.German,
	language.Italian,
	language.Japanese,
}

type catalog struct {
	matcher language.Matcher
	labels  []map[string]string // indexed like supportedLanguages
}

var (
	labelsOnce sync.Once
	labelsCat  *catalog
)

func loadCatalog() *catalog {
	labelsOnce.Do(func() {
		c := &catalog{
			matcher: language.NewMatcher(supportedLanguages),
			labels:  make([]map[string]string, len(supportedLanguages)),
		}
		for i, tag := range supportedLanguages {
			base, _ := tag.Base()
			m, err := readLocale(base.String())
			if err != nil {
				logger.WithComponent("compose").Errorf("load labels for %s: %v", base, err)
				m = map[string]string{}
			}
			c.labels[i] = m
		}
		labelsCat = c
	})
	return labelsCat
}

func readLocale(lang string) (map[string]string, error) {
	raw, err := localeFS.ReadFile(path.Join("locales", lang+".yaml"))
	if err != nil {
		return nil, err
	}
	var m map[string]string
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse %s labels: %w", lang, err)
	}
	return m, nil
}

// labeler resolves UI labels for one locale, falling back to English and
// finally to the key itself.
type labeler struct {
	primary  map[string]string
	fallback map[string]string
}

func newLabeler(locale string) labeler {
	c := loadCatalog()
	l := labeler{primary: c.labels[0], fallback: c.labels[0]}
	tag, err := language.Parse(strings.ReplaceAll(locale, "_", "-"))
	if err != nil {
		return l
	}
	_, idx, conf := c.matcher.Match(tag)
	if conf != language.No {
		l.primary = c.labels[idx]
	}
	return l
}

// get returns the label for key with {name} placeholders replaced by
// alternating name/value pairs.
func (l labeler) get(key string, pairs ...string) string {
	s, ok := l.primary[key]
	if !ok {
		if s, ok = l.fallback[key]; !ok {
			s = key
		}
	}
	for i := 0; i+1 < len(pairs); i += 2 {
		s = strings.ReplaceAll(s, "{"+pairs[i]+"}", pairs[i+1])
	}
	return s
}
