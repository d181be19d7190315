// Package classify assigns a category to a message from its subject, body
// and sender. Classification is a pure function over normalized text: rules
// are evaluated in a fixed order and the first match wins.
package classify

import (
	"strings"

	"github.com/inboxd/inboxd/internal/model"
)

// matchMode selects which normalized input a rule's phrases run against.
type matchMode int

const (
	// matchSubjectOrBody matches when any phrase appears in the subject or
	// in the body, checked separately.
	matchSubjectOrBody matchMode = iota
	// matchCombined matches against "subject body" joined with a space.
	matchCombined
	// matchSenderOrCombined matches the sender address first, then the
	// combined text against a second phrase set.
	matchSenderOrCombined
)

// rule is one tier of the classifier. Order in the rule table is
// significant: a message matching an earlier rule never falls through.
type rule struct {
	category model.Category
	mode     matchMode
	phrases  []string
	// senderPhrases is consulted only by matchSenderOrCombined.
	senderPhrases []string
}

// outOfOfficePhrases match auto-responder absence notices. They are kept
// separate so the spam keyword set can exclude them: an out-of-office note
// from a no-reply sender is still out-of-office, not spam.
var outOfOfficePhrases = []string{
	"out of office",
	"out of the office",
	"ooo",
	"away until",
	"away from",
	"vacation",
	"on leave",
	"will be back",
	"returning on",
	"out until",
	"unavailable until",
}

var notInterestedPhrases = []string{
	"not interested",
	"not a good fit",
	"no thanks",
	"no thank you",
	"not for me",
	"not right now",
	"not at this time",
	"unsubscribe",
	"remove me",
	"stop emailing",
	"stop sending",
	"do not contact",
	"remove from list",
	"opt out",
	"opt-out",
}

var interestedPhrases = []string{
	"interested",
	"sounds good",
	"yes",
	"let's connect",
	"send details",
	"send more",
	"tell me more",
	"i'm interested",
	"i am interested",
	"would like to",
	"would love to",
	"please send",
	"please share",
	"looking forward",
	"excited to",
	"definitely interested",
	"very interested",
}

var meetingPhrases = []string{
	"meeting",
	"schedule",
	"zoom",
	"google meet",
	"teams meeting",
	"microsoft teams",
	"calendar",
	".ics",
	"calendar invite",
	"calendar invitation",
	"meet at",
	"meet on",
	"meet with",
	"call at",
	"call on",
	"call scheduled",
	"scheduled call",
	"appointment",
	"book a",
	"book an",
	"set up a meeting",
	"set up a call",
	"setup meeting",
	"setup call",
}

// spamKeywords match promotional/transactional message text. This set
// deliberately excludes the out-of-office phrases, which are handled by the
// first rule tier.
var spamKeywords = []string{
	"unsubscribe",
	"newsletter",
	"promo",
	"promotion",
	"discount",
	"sale",
	"deal",
	"offer",
	"otp",
	"verification code",
	"security alert",
	"password reset",
	"account verification",
	"transactional",
	"receipt",
	"invoice",
	"order confirmation",
	"shipping confirmation",
	"delivery notification",
	"auto-reply",
	"automatic reply",
}

// spamIndicators is the full spam match set, applied to the sender address:
// no-reply style local parts, every text keyword, and a handful of absence
// phrases. Message text only runs against spamKeywords, so the out-of-office
// tier still claims absence notices from ordinary senders.
var spamIndicators = append(append([]string{
	"no-reply@",
	"noreply@",
	"donotreply@",
	"notifications@",
	"notification@",
	"noreply",
	"no-reply",
}, spamKeywords...),
	"out of office",
	"away until",
	"vacation",
	"ooo",
	"out of the office",
)

// ruleTable is the ordered classifier. Out-of-office precedes everything,
// including spam, so auto-responses from no-reply addresses keep their
// category. The default tier is implicit: no match means CategoryInbox.
var ruleTable = []rule{
	{category: model.CategoryOutOfOffice, mode: matchSubjectOrBody, phrases: outOfOfficePhrases},
	{category: model.CategoryNotInterested, mode: matchCombined, phrases: notInterestedPhrases},
	{category: model.CategoryInterested, mode: matchCombined, phrases: interestedPhrases},
	{category: model.CategoryMeetings, mode: matchCombined, phrases: meetingPhrases},
	{category: model.CategorySpam, mode: matchSenderOrCombined, phrases: spamKeywords, senderPhrases: spamIndicators},
}

// Classify maps (subject, body, sender) to a category. Inputs may be empty;
// they are never nil-like. The same inputs always produce the same category.
func Classify(subject, body, sender string) model.Category {
	subject = normalize(subject)
	body = normalize(body)
	sender = normalize(sender)
	combined := subject + " " + body

	for _, r := range ruleTable {
		if r.matches(subject, body, combined, sender) {
			return r.category
		}
	}
	return model.CategoryInbox
}

func (r rule) matches(subject, body, combined, sender string) bool {
	switch r.mode {
	case matchSubjectOrBody:
		return containsAny(subject, r.phrases) || containsAny(body, r.phrases)
	case matchCombined:
		return containsAny(combined, r.phrases)
	case matchSenderOrCombined:
		return containsAny(sender, r.senderPhrases) || containsAny(combined, r.phrases)
	default:
		return false
	}
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
