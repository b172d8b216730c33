package validator

import (
	"regexp"
	"strings"

	"github.com/comigor/save-go/internal/conversation"
)

// offTopicTerms are subjects outside the product domain.
var offTopicTerms = []string{
	"batman", "superman", "superhero", "celebrity", "movie", "movies", "film", "tv show",
	"weather", "forecast", "sports", "football", "basketball", "soccer", "election",
	"politics", "president", "history of", "homework", "poem", "joke", "stock market",
	"bitcoin", "recipe for",
}

// productTerms override the denylist: a query that mentions these is on topic.
var productTerms = []string{
	"upc", "barcode", "product", "ingredient", "nutrition", "calorie", "brand", "flavor",
}

var (
	offTopicRe = wordsRegexp(offTopicTerms)
	productRe  = wordsRegexp(productTerms)
	codeRe     = regexp.MustCompile(`\d{8,}`)
)

func wordsRegexp(words []string) *regexp.Regexp {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`(?i)\b(` + strings.Join(quoted, "|") + `)\b`)
}

// IsOffTopicQuery reports whether query matches the non-product denylist and carries
// no product signal (product vocabulary or a code of 8+ digits).
func IsOffTopicQuery(query string) bool {
	if query == "" || codeRe.MatchString(query) || productRe.MatchString(query) {
		return false
	}
	return offTopicRe.MatchString(query)
}

// Classifier decides the kind of a query given the conversation before it.
type Classifier interface {
	Classify(query string, prior []conversation.Message) conversation.QueryKind
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(query string, prior []conversation.Message) conversation.QueryKind

// Classify calls f.
func (f ClassifierFunc) Classify(query string, prior []conversation.Message) conversation.QueryKind {
	return f(query, prior)
}

var (
	acknowledgements = regexp.MustCompile(`(?i)^\W*(hi|hello|hey|thanks|thank you|ok|okay|great|cool|got it|perfect)\W*$`)
	attributeRe      = wordsRegexp([]string{
		"ingredient", "ingredients", "nutrition", "calories", "calorie", "sodium", "sugar", "protein",
		"fat", "flavor", "flavour", "brand", "size", "weight", "juice", "allergen", "allergens",
	})
	generalRe = regexp.MustCompile(`(?i)\b(what is|what's in|tell me about|info on|information (about|on)|look ?up|details (on|for))\b`)
	anaphora  = regexp.MustCompile(`(?i)\b(it|this|that|its|the product)\b`)
)

// KeywordClassifier is the default query-kind policy.
//
//   - A bare acknowledgement is a follow-up.
//   - A query with a product code or a general lookup phrase is general.
//   - A query naming specific attributes is targeted.
//   - Anything else that leans on a pronoun while an earlier answer exists is a
//     follow-up; otherwise general.
//
// Known misclassifications: "ingredients of 028400596008" is general (the code wins),
// and a short new question such as "is it vegan?" asked in a fresh session is general.
var KeywordClassifier = ClassifierFunc(func(query string, prior []conversation.Message) conversation.QueryKind {
	q := strings.TrimSpace(query)
	_, answered := conversation.LastAnswer(prior)
	switch {
	case acknowledgements.MatchString(q):
		return conversation.QueryFollowUp
	case codeRe.MatchString(q) || generalRe.MatchString(q):
		return conversation.QueryGeneral
	case attributeRe.MatchString(q):
		return conversation.QueryTargeted
	case answered && anaphora.MatchString(q):
		return conversation.QueryFollowUp
	default:
		return conversation.QueryGeneral
	}
})
