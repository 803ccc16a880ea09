package classify

import "strings"

// buildClassifyPrompt constructs the instruction block for the AI
// fallback. The model sees the payload of a single notification/SMS/OCR
// capture and must return exactly one JSON object or the literal null.
func buildClassifyPrompt(categories []string) string {
	var b strings.Builder

	b.WriteString("You are a transaction extractor for short payment signals ")
	b.WriteString("(bank SMS, payment-app push notifications, OCR'd screen text).\n\n")
	b.WriteString("Task:\n")
	b.WriteString("- Decide whether the payload below describes exactly one money movement.\n")
	b.WriteString("- If it does NOT (verification codes, balance summaries, marketing), output the literal null.\n")
	b.WriteString("- Otherwise output STRICT JSON only (no comments, no trailing commas, no extra text).\n")
	b.WriteString("- Output a single JSON object.\n\n")
	b.WriteString("The object must have these fields:\n")
	b.WriteString("- \"type\": string, one of \"expend\", \"income\", \"transfer\"\n")
	b.WriteString("- \"money\": number, the transaction amount (always positive)\n")
	b.WriteString("- \"fee\": number, any handling fee, 0 if none\n")
	b.WriteString("- \"shop_name\": string, counterparty or merchant, \"\" if unknown\n")
	b.WriteString("- \"shop_item\": string, what was bought, \"\" if unknown\n")
	b.WriteString("- \"account_from\": string, the paying account or card, \"\" if unknown\n")
	b.WriteString("- \"account_to\": string, the receiving account for transfers, \"\" otherwise\n")
	b.WriteString("- \"currency\": string, ISO code like \"CNY\", \"\" if unknown\n")
	b.WriteString("- \"category\": string (one of the predefined categories below, or \"\")\n")
	b.WriteString("- \"occurred_at\": string, RFC 3339 timestamp, \"\" if not present in the payload\n\n")

	if len(categories) > 0 {
		b.WriteString("Use ONLY the following categories:\n")
		for _, c := range categories {
			b.WriteString("  - " + c + "\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("Rules:\n")
	b.WriteString("- Never invent an amount; if no amount is present, output null.\n")
	b.WriteString("- Never invent a paying account; leave account_from empty if unclear.\n")
	b.WriteString("Return ONLY valid raw JSON or null.\n")
	b.WriteString("Do NOT wrap the response in code fences.\n")
	b.WriteString("Do NOT use ```json or any Markdown.\n")

	return b.String()
}

// cleanModelJSON strips Markdown fences and surrounding junk when the
// model ignores the formatting instructions.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	// Handle ```json ... ``` or ``` ... ``` wrappers.
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}

	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	s = strings.TrimSpace(s)
	if s == "null" {
		return s
	}

	// Extra safety: keep only from the first '{' to the last '}'.
	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}

	return s
}
