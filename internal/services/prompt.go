package services

import "fmt"

// BuildPrompt returns the instruction asking the model for batchSize ideas as
// a JSON array of {"idea", "manual_dev_hours"} objects.
func BuildPrompt(batchSize int) string {
	if batchSize < 1 {
		batchSize = 1
	}
	return fmt.Sprintf(
		"Generate %d unique, concise (1-2 line) web or mobile app project ideas "+
			"that could be built end-to-end using AI-native dev tools like v0.dev, bolt.new, cursor, emergent.sh, etc. "+
			"For each idea, estimate manual dev hours (e.g., '4 hr'). "+
			"Return a valid JSON array of objects with the keys \"idea\" and \"manual_dev_hours\".",
		batchSize,
	)
}
