package manifest

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

const schemaSource = `
#ID: "skip" | =~"^0x[0-9a-fA-F]{1,8}$" | =~"^[0-9a-fA-F]{2}:[0-9a-fA-F]{4}:v[0-9]+$"

#Slot: {
	id:      #ID
	kind?:   "offset" | "flags" | "symbol" | "skip"
	value?:  int & >=0
	symbol?: string & !=""
}

#Callable: {
	signature:    string & !=""
	symbol:       string & !=""
	flags?:       [...("requires_exclusive" | "acquires_exclusive" | "may_signal_error")]
	abi_version?: int & >=0 & <=255
}

#Type: {
	name:       =~"^[A-Za-z_][A-Za-z0-9_]*$"
	namespace?: string
	base?:      string & !=""
	capacity?:  int & >=0
	slot?:      [...#Slot]
	callable?:  [...#Callable]
}

#Manifest: {
	provider: {
		name:       string & !=""
		namespace?: string
		capacity?:  int & >=0
	}
	reclaim?: {
		interval?:   string
		background?: bool
	}
	type?: [...#Type]
}
`

var (
	schemaMu       sync.Mutex // cue values are not safe for concurrent use
	manifestSchema cue.Value
)

func init() {
	ctx := cuecontext.New()
	v := ctx.CompileString(schemaSource)
	if err := v.Err(); err != nil {
		panic(fmt.Sprintf("manifest: bad schema: %v", err))
	}
	manifestSchema = v.LookupPath(cue.ParsePath("#Manifest"))
}

// validateSchema checks decoded TOML against the manifest schema. Unknown
// keys and values of the wrong shape are rejected here, before any type is
// built.
func validateSchema(raw map[string]any) error {
	schemaMu.Lock()
	defer schemaMu.Unlock()

	v := manifestSchema.Context().Encode(raw)
	if err := v.Err(); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	if err := manifestSchema.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	return nil
}
