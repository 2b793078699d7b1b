// Package ui implements the `vidpub run --tui` dashboard using bubbletea's Elm architecture.
//
// The dashboard has two views:
//  1. [JobListView] : Browse jobs with their aggregate state and platforms
//  2. [JobDetailView] : Inspect every target of the selected job, including retries and upload progress
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Scheduler events arrive through a [tasks.Bus] subscription. State changes trigger a reload of the job list, and
// progress events update the in-flight upload percentages without touching the store.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, r, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
