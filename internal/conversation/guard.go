package conversation

import (
	"regexp"
	"strings"

	"github.com/wolfman30/medbook-agent/internal/appointments"
)

// guardReply replaces blocked input and leaking answers.
const guardReply = "I can help you with doctors, appointment slots and bookings. What would you like to do?"

const (
	blockScore = 0.7
	stripScore = 0.3
)

type inputSignal struct {
	re     *regexp.Regexp
	reason string
	weight float64

	// patientsOnly signals are skipped for doctors, whose reports name patients.
	patientsOnly bool
}

var inputSignals = []inputSignal{
	{re: regexp.MustCompile(`(?i)(ignore|disregard|forget)\s+(all\s+)?(previous|prior|above|earlier|your)\s+(instructions?|rules?|prompts?|guidelines?|directives?)`), reason: "injection:override_instructions", weight: 0.9},
	{re: regexp.MustCompile(`(?i)you\s+are\s+now\s+(a|an|my)\s+`), reason: "injection:role_reassignment", weight: 0.7},
	{re: regexp.MustCompile(`(?i)new\s+role\s*:|new\s+instructions?\s*:|system\s*prompt\s*:|<<\s*sys(tem)?\s*>>`), reason: "injection:new_role", weight: 0.9},
	{re: regexp.MustCompile(`(?i)(pretend|imagine|assume)\s+(that\s+)?(you\s+)?(are|have|were|don'?t\s+have)\s+(no\s+)?(rules?|restrictions?|limits?|guidelines?|filters?)`), reason: "injection:pretend_no_rules", weight: 0.9},
	{re: regexp.MustCompile(`(?i)bypass\s+(your\s+)?(safety|filters?|restrictions?|guidelines?|rules?)`), reason: "injection:bypass", weight: 0.8},
	{re: regexp.MustCompile(`(?i)jailbreak|DAN\s*mode|developer\s*mode|god\s*mode`), reason: "injection:jailbreak_keyword", weight: 0.9},
	{re: regexp.MustCompile(`(?i)(act|log\s*in|sign\s*in|book)\s+(as|for)\s+(doctor|dr\.?|patient|user)\s+(id\s+)?[0-9a-f-]{8,}`), reason: "injection:identity_swap", weight: 0.8},

	{re: regexp.MustCompile(`(?i)(reveal|show|display|print|repeat|tell\s+me)\s+(your\s+)?(system\s+prompt|instructions?|initial\s+prompt|hidden\s+prompt|system\s+message)`), reason: "exfiltration:system_prompt", weight: 0.8},
	{re: regexp.MustCompile(`(?i)\b(api|secret|aws|slack|database|db|jwt)\s*(key|token|secret|password|credential)s?\b`), reason: "exfiltration:credentials", weight: 0.8},
	{re: regexp.MustCompile(`(?i)(other|another|all)\s+patients?('s|s')?\s+(data|records?|details?|phone|emails?|contacts?|appointments?|symptoms?)`), reason: "exfiltration:other_patients", weight: 0.7, patientsOnly: true},

	{re: regexp.MustCompile(`<\s*(script|iframe|object|embed|svg|form)\b`), reason: "obfuscation:html", weight: 0.6},
	{re: regexp.MustCompile(`(?i)base64\s*(encode|decode|:)`), reason: "obfuscation:encoding", weight: 0.5},

	{re: regexp.MustCompile(`(?i)\[/?INST\]|\[/?SYS\]|<\|im_start\|>|<\|im_end\|>|<\|system\|>|<\|user\|>|<\|assistant\|>`), reason: "framing:special_tokens", weight: 0.9},
	{re: regexp.MustCompile(`(?i)###\s*(system|instruction|assistant)\s*:`), reason: "framing:role_markers", weight: 0.7},
	{re: regexp.MustCompile(`(?i)the\s+real\s+(instructions?|task|prompt)\s+(is|starts?|begins?)`), reason: "framing:real_instructions", weight: 0.8},
}

var controlMarkers = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\[/?INST\]|\[/?SYS\]|<\|im_start\|>|<\|im_end\|>|<\|system\|>|<\|user\|>|<\|assistant\|>`),
	regexp.MustCompile(`(?i)###\s*(system|instruction|human|assistant|user)\s*:`),
	regexp.MustCompile(`<\s*(script|img|iframe|object|embed|link|style|svg|form)\b[^>]*>`),
}

// InputVerdict is the screening result for one inbound message.
type InputVerdict struct {
	Blocked bool
	Score   float64
	Signals []string
	Message string
}

// ScreenInput scores a user message for prompt-injection signals. Blocked
// messages never reach the provider; mid-scoring ones have control markers
// stripped.
func ScreenInput(role appointments.Role, message string) InputVerdict {
	v := InputVerdict{Message: message}
	if strings.TrimSpace(message) == "" {
		return v
	}
	top := 0.0
	for _, s := range inputSignals {
		if s.patientsOnly && role == appointments.RoleDoctor {
			continue
		}
		if s.re.MatchString(message) {
			v.Signals = append(v.Signals, s.reason)
			if s.weight > top {
				top = s.weight
			}
		}
	}
	if len(v.Signals) == 0 {
		return v
	}
	v.Score = top + float64(len(v.Signals)-1)*0.1
	if v.Score > 1 {
		v.Score = 1
	}
	switch {
	case v.Score >= blockScore:
		v.Blocked = true
	case v.Score >= stripScore:
		v.Message = StripControlMarkers(message)
	}
	return v
}

// StripControlMarkers removes chat-template tokens, fake role headers and
// active HTML tags.
func StripControlMarkers(message string) string {
	for _, re := range controlMarkers {
		message = re.ReplaceAllString(message, "")
	}
	return strings.TrimSpace(message)
}

type outputSignal struct {
	re           *regexp.Regexp
	reason       string
	patientsOnly bool
}

var outputSignals = []outputSignal{
	{re: regexp.MustCompile(`(?i)my (system\s+)?prompt\s+(is|says|tells|instructs)`), reason: "leak:system_prompt"},
	{re: regexp.MustCompile(`(?i)(here are|these are|the following are)\s+(my )?(system )?(instructions|rules|guidelines|prompts)`), reason: "leak:rules_listing"},
	{re: regexp.MustCompile(`(?i)CURRENT_TIME_CONTEXT:`), reason: "leak:prompt_echo"},
	{re: regexp.MustCompile(`(?i)(api[_\s]?key|secret[_\s]?key|access[_\s]?token|bearer\s+token|bot\s+token)\s*[:=]\s*\S+`), reason: "leak:credential"},
	{re: regexp.MustCompile(`AKIA[A-Z0-9]{16}`), reason: "leak:aws_key"},
	{re: regexp.MustCompile(`xox[abp]-[A-Za-z0-9-]{10,}`), reason: "leak:slack_token"},
	{re: regexp.MustCompile(`(?i)(postgres|postgresql|redis)://\S+`), reason: "leak:database_url"},
	{re: regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}:\d{2,5}\b`), reason: "leak:ip_port"},
	{re: regexp.MustCompile(`(?i)other patient'?s?\s+(name|phone|email|appointment|record|symptoms?)`), reason: "leak:other_patient", patientsOnly: true},
}

// OutputVerdict is the screening result for a final answer.
type OutputVerdict struct {
	Leaked  bool
	Signals []string
	Answer  string
}

// ScreenOutput replaces answers that disclose prompts, credentials or
// infrastructure with the generic guard reply.
func ScreenOutput(role appointments.Role, answer string) OutputVerdict {
	v := OutputVerdict{Answer: answer}
	for _, s := range outputSignals {
		if s.patientsOnly && role == appointments.RoleDoctor {
			continue
		}
		if s.re.MatchString(answer) {
			v.Signals = append(v.Signals, s.reason)
		}
	}
	if len(v.Signals) > 0 {
		v.Leaked = true
		v.Answer = guardReply
	}
	return v
}
