package worker

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"

	"github.com/GriffinCanCode/psearch/internal/ipc"
	"github.com/GriffinCanCode/psearch/internal/search"
	"github.com/GriffinCanCode/psearch/internal/shared/types"
)

// Invocation is everything one worker needs.
type Invocation struct {
	Task     types.SearchTask
	Endpoint ipc.Endpoint
	Search   search.Options
}

// Args encodes inv as worker command-line flags. Endpoint.File is not
// encoded; the launcher passes it as an inherited descriptor.
func Args(inv Invocation) []string {
	return []string{
		"-index", strconv.Itoa(inv.Task.Index),
		"-file", inv.Task.FilePath,
		"-word", inv.Task.TargetWord,
		"-channel", string(inv.Endpoint.Kind),
		"-address", inv.Endpoint.Address,
		"-gate", inv.Endpoint.Gate,
		"-token", inv.Endpoint.Token,
		"-max-frame", strconv.Itoa(inv.Endpoint.MaxFrameBytes),
		"-max-token", strconv.Itoa(inv.Search.MaxTokenBytes),
		"-reject-binary=" + strconv.FormatBool(inv.Search.RejectBinary),
	}
}

// ParseArgs decodes flags produced by Args.
func ParseArgs(args []string) (Invocation, error) {
	fs := flag.NewFlagSet("psearch worker", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	defaults := search.DefaultOptions()
	index := fs.Int("index", -1, "task index")
	file := fs.String("file", "", "input file")
	word := fs.String("word", "", "target word")
	channel := fs.String("channel", "", "channel kind")
	address := fs.String("address", "", "channel address")
	gate := fs.String("gate", "", "gate path")
	token := fs.String("token", "", "region token")
	maxFrame := fs.Int("max-frame", ipc.DefaultMaxFrameBytes, "maximum frame size")
	maxToken := fs.Int("max-token", defaults.MaxTokenBytes, "maximum token size")
	rejectBinary := fs.Bool("reject-binary", defaults.RejectBinary, "fail on binary input")

	if err := fs.Parse(args); err != nil {
		return Invocation{}, err
	}
	if fs.NArg() > 0 {
		return Invocation{}, fmt.Errorf("unexpected arguments %q", fs.Args())
	}

	kind, err := ipc.ParseKind(*channel)
	if err != nil {
		return Invocation{}, err
	}
	switch {
	case *index < 0:
		return Invocation{}, errors.New("missing or negative -index")
	case *file == "":
		return Invocation{}, errors.New("missing -file")
	case *word == "":
		return Invocation{}, errors.New("missing -word")
	case *address == "":
		return Invocation{}, errors.New("missing -address")
	case kind == ipc.KindShm && (*gate == "" || *token == ""):
		return Invocation{}, errors.New("shared memory channel needs -gate and -token")
	}

	return Invocation{
		Task: types.SearchTask{Index: *index, FilePath: *file, TargetWord: *word},
		Endpoint: ipc.Endpoint{
			Kind:          kind,
			Index:         *index,
			Address:       *address,
			Gate:          *gate,
			Token:         *token,
			MaxFrameBytes: *maxFrame,
		},
		Search: search.Options{
			MaxTokenBytes: *maxToken,
			RejectBinary:  *rejectBinary,
		},
	}, nil
}
