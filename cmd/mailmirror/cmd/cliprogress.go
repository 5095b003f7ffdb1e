package cmd

import (
	"fmt"

	"mailmirror/internal/progress"
)

// CLIProgress renders sync progress events on the terminal. Listing and
// download updates overwrite a single line; phase transitions and the final
// summary each get their own line.
type CLIProgress struct {
	inline bool // an unfinished \r line is on screen
}

func (p *CLIProgress) Report(e progress.Event) {
	switch e.Phase {
	case progress.PhaseListing:
		fmt.Printf("\rListing messages... %d found", e.Current)
		p.inline = true
	case progress.PhaseDownloading:
		if e.Total > 0 {
			fmt.Printf("\rDownloading %d/%d (%.0f%%)", e.Current, e.Total,
				float64(e.Current)/float64(e.Total)*100)
		} else {
			fmt.Printf("\rDownloading %d", e.Current)
		}
		p.inline = true
	case progress.PhaseSyncing:
		fmt.Printf("\rApplying changes... %d processed", e.Current)
		p.inline = true
	case progress.PhaseInfo:
		p.endLine()
		fmt.Println(e.Message)
	case progress.PhaseDone:
		p.endLine()
		if e.Message != "" {
			fmt.Println(e.Message)
		}
	}
}

func (p *CLIProgress) endLine() {
	if p.inline {
		fmt.Println()
		p.inline = false
	}
}
