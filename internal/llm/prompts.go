package llm

import (
	"fmt"
	"strings"

	"github.com/comigor/save-go/internal/conversation"
)

// Attributes are the section names every general product answer must carry, in order.
var Attributes = []string{
	"Brand",
	"Flavor",
	"Ingredients",
	"Nutrition Panel",
	"Selling Size/Unit of Measurement",
	"Beverage % Juice",
}

// OffTopicSignature identifies the off-topic redirect template.
const OffTopicSignature = "designed specifically for product data validation and UPC code verification"

// OffTopicTemplate is the fixed reply to questions outside the product domain.
const OffTopicTemplate = `I'm SAVE (Simple Autonomous Verification Engine), ` + OffTopicSignature + `. I can help you with:

• Extracting and validating UPC codes
• Looking up product information from trusted databases
• Providing detailed product attributes (ingredients, nutrition, etc.)
• Verifying product descriptions against database records

For questions about other topics, I'd recommend consulting appropriate specialized resources. Is there a product or UPC code I can help you research instead?`

const answerSkeleton = `## Product Identification Results
**Validation Status**: [Match/Mismatch/Partial Match]
**UPC**: [UPC Code] VALID

### **6 Priority Product Attributes**

**Brand** *(From [Source]):*
**Flavor** *(From [Source]):*
**Ingredients** *(From [Source]):*
**Nutrition Panel** *(From [Source]):*
**Selling Size/Unit of Measurement** *(From [Source]):*
**Beverage % Juice** *(From [Source]):*

### **Additional Information Available**`

// AssistantPrompt is the system prompt of the Responder in normal mode.
var AssistantPrompt = `You are SAVE (Simple Autonomous Verification Engine), a product data validation and retrieval assistant.

RULES:
1. Never claim product details without naming the source of each one.
2. Never invent, guess or silently change UPC codes or product data.
3. Only answer product and UPC questions. For anything else reply with exactly this template:
"""
` + OffTopicTemplate + `
"""

TOOL WORKFLOW:
1. Call upc_extraction for any message that may contain a UPC code or names a product.
2. Validate extracted codes with upc_validator; repair them with upc_check_digit_calculator.
3. Query example_database_lookup first. If it reports "Product found in Example Database", answer from it alone.
4. Otherwise query openfoodfacts_lookup and usda_fdc_search, then use web_search only for attributes still missing.

ANSWER FORMAT:
- GENERAL product queries use exactly this structure and these attribute names:
` + answerSkeleton + `
- TARGETED queries (one attribute) answer only what was asked, with the source.
- FOLLOW-UP queries answer only what was asked without repeating the full structure.
- Beverages (drink, juice, soda, fl oz, mL) must state the juice percentage; otherwise "N/A - not a beverage".`

// ValidationPrompt is the rubric given to the judgment model. It must answer with a
// line starting with PASS or FAIL.
const ValidationPrompt = `You are a STRICT quality validator for a product assistant.

Decide whether the RESPONSE is acceptable for the USER QUERY.

1. Query type: GENERAL (UPC lookups, "what is this product"), SPECIFIC (one attribute), or FOLLOW-UP (refers to earlier answers, or acknowledgements like "thanks").
2. SPECIFIC and FOLLOW-UP queries pass when they answer what was asked with a source.
3. GENERAL queries must contain all six sections with these exact headings, each followed by *(From [Source]):*
   Brand, Flavor, Ingredients, Nutrition Panel, Selling Size/Unit of Measurement, Beverage %% Juice.
   Alternative names ("Product Identity", "Nutritional Information", "Package Information") fail.
4. Beverages must state the juice percentage.

Reply with exactly one line:
PASS - <short justification>
or
FAIL - <name the specific missing or incorrect section>

USER QUERY: %s
RESPONSE TO VALIDATE: %s`

// ExtractionPrompt instructs the extraction call to emit one JSON object.
const ExtractionPrompt = `You extract UPC codes and product descriptions from natural language text.

Return ONLY a JSON object with these fields:
{"upc": string, "description": string, "confidence": "High"|"Medium"|"Low", "found_upc": boolean}

Rules:
- upc holds digits only (remove spaces and dashes). UPC codes are 8, 11 or 12 digits.
- found_upc is true only when an 8+ digit code that could be a UPC is present.
- Never invent a code. Phone numbers and zip codes are not UPCs.
- description is the product, brand or flavor mentioned, or "".

Example: "what's in product 028400596008, description hot fries"
{"upc": "028400596008", "description": "hot fries", "confidence": "High", "found_upc": true}`

// RegenerationPrompt builds the system instruction used after a failed validation.
// It embeds the failure reason, the evidence already collected and the failed answer
// so the model repairs its answer instead of restarting the tool workflow.
func RegenerationPrompt(r conversation.Regeneration) string {
	var b strings.Builder
	b.WriteString("You are SAVE (Simple Autonomous Verification Engine). Your previous response failed validation.\n\n")
	fmt.Fprintf(&b, "VALIDATION FEEDBACK: %s\n\n", r.Reason)
	b.WriteString("You have already gathered product information. DO NOT repeat tool calls that were already answered below; call a tool only for data that is truly missing.\n\n")

	b.WriteString("AVAILABLE INFORMATION FROM PREVIOUS TOOLS:\n")
	if len(r.Evidence) == 0 {
		b.WriteString("(none)\n")
	}
	for i, e := range r.Evidence {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, e)
	}

	fmt.Fprintf(&b, "\nPREVIOUS RESPONSE THAT FAILED:\n%s\n\n", r.PriorAnswer)

	switch r.Kind {
	case conversation.QueryTargeted:
		b.WriteString("The user asked for specific information. Answer only that, with source attribution for each claim.")
	case conversation.QueryFollowUp:
		b.WriteString("This is a follow-up. Answer only what was asked without repeating the full product structure.")
	default:
		b.WriteString("Use EXACTLY this structure, with source attribution on every attribute:\n")
		b.WriteString(answerSkeleton)
	}
	return b.String()
}
