// Copyright 2025 The OpsCore Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package chokidar

import (
	"fmt"
	"strings"

	"github.com/opscore/orchestrator/pkg/model"
)

// maxPreservedTextBytes bounds how much streamed text the tripwire
// path carries forward into the final result (spec §4.8).
const maxPreservedTextBytes = 50 * 1024

const preservedTextTruncationMarker = "\n[... preserved output truncated ...]"

// PreserveText truncates streamed text that survives a tripwire to
// maxPreservedTextBytes, appending a visible marker when it had to cut
// anything.
func PreserveText(text string) string {
	if len(text) <= maxPreservedTextBytes {
		return text
	}
	cut := maxPreservedTextBytes - len(preservedTextTruncationMarker)
	if cut < 0 {
		cut = 0
	}
	return text[:cut] + preservedTextTruncationMarker
}

// RetryDecision is what the supervisor does in response to a tripwire:
// either give up with a termination notice, or retry with a composed
// continuation prompt.
type RetryDecision struct {
	Terminate          bool
	TerminationNotice  string
	ContinuationPrompt string
}

// Retry implements the bounded retry and continuation-prompt
// composition procedure (spec §4.8):
//  1. preserve the streamed text (already truncated by the caller via
//     PreserveText) so it can be prepended to the eventual final result;
//  2. terminate once retryCount reaches maxRetries;
//  3. otherwise increment retryCount and compose a continuation prompt
//     that quotes the preserved work, enumerates the checkpoint-aware
//     remaining items, forbids handing back to the user or describing
//     code instead of executing it, and re-attaches the original
//     contextual message.
func Retry(state *model.BulkOperationState, preservedText, originalMessage string) RetryDecision {
	if !state.CanRetry() {
		return RetryDecision{
			Terminate: true,
			TerminationNotice: fmt.Sprintf(
				"Bulk operation %q stopped after %d retries without completing. "+
					"%d of %d items remain: %s",
				state.OperationType, state.RetryCount, len(remaining(state)), state.ExpectedItems,
				strings.Join(remaining(state), ", "),
			),
		}
	}

	state.RetryCount++
	return RetryDecision{
		ContinuationPrompt: composeContinuationPrompt(state, preservedText, originalMessage),
	}
}

func remaining(state *model.BulkOperationState) []string {
	return model.RemainingItems(state.ItemList, state.CompletedItems)
}

func composeContinuationPrompt(state *model.BulkOperationState, preservedText, originalMessage string) string {
	rem := remaining(state)

	var b strings.Builder
	b.WriteString("You stopped a bulk operation after only announcing your plan. ")
	b.WriteString("Here is the work you already produced, preserved verbatim:\n\n")
	b.WriteString("---\n")
	b.WriteString(preservedText)
	b.WriteString("\n---\n\n")

	b.WriteString(fmt.Sprintf("%d of %d items remain to be processed:\n", len(rem), state.ExpectedItems))
	for _, item := range rem {
		b.WriteString("- ")
		b.WriteString(item)
		b.WriteString("\n")
	}

	b.WriteString("\nContinue processing the remaining items yourself, using the available tools. ")
	b.WriteString("Do not hand this back to the user and do not ask them to continue. ")
	b.WriteString("Do not describe or print the code or steps you would take instead of executing them. ")
	b.WriteString("Perform the remaining work now.\n\n")

	if originalMessage != "" {
		b.WriteString("Original request:\n")
		b.WriteString(originalMessage)
	}

	return b.String()
}
