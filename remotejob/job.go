package remotejob

// Phase is the client-side view of a remote job's progress
type Phase string

const (
	PhaseCreated    Phase = "created"
	PhaseUploading  Phase = "uploading"
	PhaseProcessing Phase = "processing"
	PhaseFinished   Phase = "finished"
	PhaseError      Phase = "error"
)

// Task names used in every job this client creates
const (
	taskImport  = "import-file"
	taskConvert = "convert-file"
	taskExport  = "export-file"
)

// Job status values reported by the service
const (
	StatusWaiting    = "waiting"
	StatusProcessing = "processing"
	StatusFinished   = "finished"
	StatusError      = "error"
)

type jobRequest struct {
	Tasks map[string]any `json:"tasks"`
	Tag   string         `json:"tag,omitempty"`
}

type jobEnvelope struct {
	Data Job `json:"data"`
}

// Job is the subset of a remote job this client reads
type Job struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Tasks  []Task `json:"tasks"`
}

type Task struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Operation string      `json:"operation"`
	Status    string      `json:"status"`
	Code      string      `json:"code,omitempty"`
	Message   string      `json:"message,omitempty"`
	Result    *TaskResult `json:"result,omitempty"`
}

type TaskResult struct {
	Form  *UploadForm  `json:"form,omitempty"`
	Files []ResultFile `json:"files,omitempty"`
}

// UploadForm is the destination for the source file. Parameters must be
// sent as form fields before the file itself.
type UploadForm struct {
	URL        string         `json:"url"`
	Parameters map[string]any `json:"parameters"`
}

type ResultFile struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

func (j *Job) task(name string) *Task {
	for i := range j.Tasks {
		if j.Tasks[i].Name == name {
			return &j.Tasks[i]
		}
	}
	return nil
}

// failure describes the first failed task, for error messages
func (j *Job) failure() string {
	for _, t := range j.Tasks {
		if t.Status != StatusError {
			continue
		}
		switch {
		case t.Code != "" && t.Message != "":
			return t.Name + ": " + t.Code + ": " + t.Message
		case t.Message != "":
			return t.Name + ": " + t.Message
		case t.Code != "":
			return t.Name + ": " + t.Code
		}
		return t.Name + " failed"
	}
	return "job ended with status error"
}
