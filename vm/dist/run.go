package dist

// RunnerServiceName is the service that evaluates source on a hosted runtime.
const RunnerServiceName = "chainsaw.run.v1.RunnerService"

// RunProcedure compiles and runs one program.
const RunProcedure = "/" + RunnerServiceName + "/Run"

// HeapProcedure returns a snapshot of the hosted runtime without collecting.
const HeapProcedure = "/" + RunnerServiceName + "/Heap"

// RunRequest carries program text.
type RunRequest struct {
	Source string `cbor:"1,keyasint"`
}

// RunResponse reports what a run printed and how it ended. Globals and
// the heap persist on the server between runs.
type RunResponse struct {
	Success bool             `cbor:"1,keyasint"`
	Output  string           `cbor:"2,keyasint,omitempty"`
	Error   string           `cbor:"3,keyasint,omitempty"`
	Cycles  int              `cbor:"4,keyasint"`
	Freed   int              `cbor:"5,keyasint"`
	Globals []GlobalSnapshot `cbor:"6,keyasint,omitempty"`
}

// HeapRequest is empty.
type HeapRequest struct{}

// HeapResponse wraps the current snapshot.
type HeapResponse struct {
	Snapshot *HeapSnapshot `cbor:"1,keyasint"`
}
