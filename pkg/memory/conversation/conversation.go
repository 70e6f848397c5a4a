// Package conversation implements per-session Conversation Memory: a
// timeline of messages, per-participant counters, topic/hashtag frequency
// tracking, a bounded recent-context window, and a monotonically growing
// avoided-topics set. No teacher analogue exists for this subsystem; it
// follows the teacher's per-resource mutex-guarded struct convention (as in
// pkg/store/sqlite) with session ownership enforced by one Memory instance
// per session, matching the spec's "owned per session, freed on session
// destroy" lifetime.
package conversation

import (
	"regexp"
	"strings"
	"sync"
	"time"
)

const (
	contextWindowSize = 20
	avoidCountThreshold = 5
	avoidDepthThreshold  = 3.0
	maxDepth             = 5.0
	depthIncrement       = 0.2
	recentTopicWindow    = 5 * time.Minute
)

var (
	hashtagPattern = regexp.MustCompile(`#(\w+)`)
	topicKeywords  = []string{"about", "regarding", "discuss", "explore"}
	capBigramPattern = regexp.MustCompile(`\b([A-Z][a-z]+)\s+([A-Z][a-z]+)\b`)
)

// TimelineEntry is one recorded message.
type TimelineEntry struct {
	Timestamp time.Time
	AgentID   string
	Text      string
	Topics    []string
	Hashtags  []string
}

// ParticipantStats tracks one participant's activity.
type ParticipantStats struct {
	MessageCount int
	Topics       map[string]bool
	Hashtags     map[string]bool
}

// TopicStats tracks one topic's frequency and recency.
type TopicStats struct {
	Count     int
	FirstSeen time.Time
	LastSeen  time.Time
	Depth     float64
}

// Context is the bundle returned by GetContext.
type Context struct {
	Window        []TimelineEntry
	RecentTopics  []string
	AvoidedTopics []string
}

// Memory is one session's conversation state.
type Memory struct {
	mu sync.Mutex

	SessionID string

	timeline      []TimelineEntry
	participants  map[string]*ParticipantStats
	topics        map[string]*TopicStats
	contextWindow []TimelineEntry
	avoidedTopics map[string]bool
}

// New creates empty Conversation Memory for a session.
func New(sessionID string) *Memory {
	return &Memory{
		SessionID:    sessionID,
		participants: make(map[string]*ParticipantStats),
		topics:       make(map[string]*TopicStats),
		avoidedTopics: make(map[string]bool),
	}
}

// AddMessage records one message from agentID, extracting hashtags and
// topics, updating participant/topic stats, appending to the timeline and
// bounded context window, and recomputing the avoided-topics set.
func (m *Memory) AddMessage(agentID, text string) {
	now := time.Now()
	topics := extractTopics(text)
	hashtags := extractHashtags(text)

	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.participants[agentID]
	if !ok {
		p = &ParticipantStats{Topics: make(map[string]bool), Hashtags: make(map[string]bool)}
		m.participants[agentID] = p
	}
	p.MessageCount++
	for _, t := range topics {
		p.Topics[t] = true
	}
	for _, h := range hashtags {
		p.Hashtags[h] = true
	}

	for _, t := range topics {
		st, ok := m.topics[t]
		if !ok {
			st = &TopicStats{FirstSeen: now}
			m.topics[t] = st
		}
		st.Count++
		st.LastSeen = now
		st.Depth = minFloat(maxDepth, st.Depth+depthIncrement)
	}

	entry := TimelineEntry{Timestamp: now, AgentID: agentID, Text: text, Topics: topics, Hashtags: hashtags}
	m.timeline = append(m.timeline, entry)

	m.contextWindow = append(m.contextWindow, entry)
	if len(m.contextWindow) > contextWindowSize {
		m.contextWindow = m.contextWindow[len(m.contextWindow)-contextWindowSize:]
	}

	m.recomputeAvoidedTopics()
}

// recomputeAvoidedTopics is cumulative: once a topic enters the set it is
// never removed, since new candidates are only ever added, never cleared.
// Caller must hold mu.
func (m *Memory) recomputeAvoidedTopics() {
	for topic, st := range m.topics {
		if st.Count > avoidCountThreshold && st.Depth > avoidDepthThreshold {
			m.avoidedTopics[topic] = true
		}
	}
}

// ShouldAvoidTopic reports whether topic is in the avoided set or has been
// mentioned more than 3 times.
func (m *Memory) ShouldAvoidTopic(topic string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.avoidedTopics[topic] {
		return true
	}
	if st, ok := m.topics[topic]; ok {
		return st.Count > 3
	}
	return false
}

// GetContext returns the last limit window entries, topics active within
// the last 5 minutes, and the avoided-topics set.
func (m *Memory) GetContext(limit int) Context {
	m.mu.Lock()
	defer m.mu.Unlock()

	window := m.contextWindow
	if limit > 0 && limit < len(window) {
		window = window[len(window)-limit:]
	}
	out := Context{Window: append([]TimelineEntry{}, window...)}

	now := time.Now()
	for topic, st := range m.topics {
		if now.Sub(st.LastSeen) <= recentTopicWindow {
			out.RecentTopics = append(out.RecentTopics, topic)
		}
	}
	for topic := range m.avoidedTopics {
		out.AvoidedTopics = append(out.AvoidedTopics, topic)
	}
	return out
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// extractHashtags returns lower-cased #word tokens.
func extractHashtags(text string) []string {
	matches := hashtagPattern.FindAllStringSubmatch(text, -1)
	var out []string
	for _, mt := range matches {
		out = append(out, strings.ToLower(mt[1]))
	}
	return out
}

// extractTopics returns lower-cased tokens following a small keyword set,
// plus capitalized bigrams normalized with underscores.
func extractTopics(text string) []string {
	var out []string

	words := strings.Fields(text)
	for i, w := range words {
		normalized := strings.ToLower(strings.Trim(w, ".,!?;:"))
		for _, kw := range topicKeywords {
			if normalized == kw && i+1 < len(words) {
				topic := strings.ToLower(strings.Trim(words[i+1], ".,!?;:"))
				if topic != "" {
					out = append(out, topic)
				}
			}
		}
	}

	// Restart each search at the second word of the previous match, so
	// overlapping bigrams ("Our Database Migration") are all collected.
	for start := 0; start < len(text); {
		loc := capBigramPattern.FindStringSubmatchIndex(text[start:])
		if loc == nil {
			break
		}
		out = append(out, strings.ToLower(text[start+loc[2]:start+loc[3]]+"_"+text[start+loc[4]:start+loc[5]]))
		start += loc[4]
	}

	return out
}
