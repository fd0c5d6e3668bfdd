package prompt

import "fmt"

// Correction builds the prompt used to clean up a raw speech-to-text
// transcript before it is sent as a chat turn
func Correction(rawTranscript string) string {
	return fmt.Sprintf(`Please correct the following speech-to-text transcript. Fix grammar, punctuation, capitalization, and any obvious transcription errors. Keep the meaning and intent intact. Return only the corrected text without any additional commentary.

Raw transcript: %q

Corrected text:`, rawTranscript)
}
