package citation

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"edu-chatbot-be/pkg/store"
)

// RetrievalTool is the only tool whose observations carry citable labels.
const RetrievalTool = "retrieve_documents"

var labelPattern = regexp.MustCompile(`^Source\s+(\d+)\s+\[Score:`)

// Format renders documents as labeled observation lines. Metadata is
// withheld from the model; the label index is the only link back.
func Format(docs []store.Document) string {
	var b strings.Builder
	for i, d := range docs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		text := strings.Join(strings.Fields(d.Text), " ")
		fmt.Fprintf(&b, "Source %d [Score: %.2f]: %s", i+1, d.Score, text)
	}
	return b.String()
}

// Evidence is one executed tool step: the tool name, the observation the
// model saw and the exact document list that observation was built from.
type Evidence struct {
	Tool        string
	Observation string
	Documents   []store.Document
}

// Reconcile maps "Source i" labels in retrieval observations back to the
// i-th document of the same step. Unknown labels are ignored. Each document
// is cited once and the result is sorted by descending score.
func Reconcile(evidence []Evidence, minScore float64) []store.Citation {
	seen := make(map[string]bool)
	var out []store.Citation

	for _, ev := range evidence {
		if ev.Tool != RetrievalTool || len(ev.Documents) == 0 {
			continue
		}
		for _, line := range strings.Split(ev.Observation, "\n") {
			m := labelPattern.FindStringSubmatch(strings.TrimSpace(line))
			if m == nil {
				continue
			}
			idx, err := strconv.Atoi(m[1])
			if err != nil || idx < 1 || idx > len(ev.Documents) {
				continue
			}
			doc := ev.Documents[idx-1]
			if doc.ID == "" || doc.Score < minScore || seen[doc.ID] {
				continue
			}
			seen[doc.ID] = true
			out = append(out, FromDocument(doc))
		}
	}

	SortByScore(out)
	return out
}

// Union merges citation lists keyed by id, keeping the first occurrence.
func Union(a, b []store.Citation) []store.Citation {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]store.Citation, 0, len(a)+len(b))
	for _, list := range [][]store.Citation{a, b} {
		for _, c := range list {
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			out = append(out, c)
		}
	}
	SortByScore(out)
	return out
}

func SortByScore(c []store.Citation) {
	sort.SliceStable(c, func(i, j int) bool { return c[i].Score > c[j].Score })
}

// FromDocument projects a document onto the user-visible citation fields.
func FromDocument(d store.Document) store.Citation {
	m := d.Metadata
	return store.Citation{
		ID:           d.ID,
		Score:        d.Score,
		LectureID:    metaString(m, "lecture_id"),
		TranscriptID: metaString(m, "transcript_id"),
		ChunkID:      metaString(m, "chunk_id"),
		Subject:      metaString(m, "subject"),
		SubjectID:    metaString(m, "subject_id"),
		Topics:       metaString(m, "topics"),
		Chapter:      metaString(m, "chapter"),
		ClassName:    metaString(m, "class_name"),
		ClassID:      metaString(m, "class_id"),
		TeacherName:  metaString(m, "teacher_name"),
		TeacherID:    metaString(m, "teacher_id"),
	}
}

func metaString(m map[string]interface{}, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		// JSON numbers decode as float64; ids must not render as 1e+06.
		if t == math.Trunc(t) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case []interface{}:
		parts := make([]string, 0, len(t))
		for _, p := range t {
			parts = append(parts, fmt.Sprint(p))
		}
		return strings.Join(parts, ", ")
	case []string:
		return strings.Join(t, ", ")
	default:
		return fmt.Sprint(t)
	}
}
