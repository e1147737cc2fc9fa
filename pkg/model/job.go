package model

import "time"

// TopologyKind selects which generator builds the Topology a SimulationRequest runs against.
type TopologyKind int

const (
	TopologyOneBigSwitch TopologyKind = iota
	TopologyFatTree
)

func (k TopologyKind) String() string {
	switch k {
	case TopologyOneBigSwitch:
		return "one_big_switch"
	case TopologyFatTree:
		return "fat_tree"
	default:
		return "unknown"
	}
}

// TopologyInput is the serializable form of a topology configuration, loaded
// from a scenario file via viper/mapstructure and turned into a
// *topology.Topology by internal/topology's generators.
type TopologyInput struct {
	Kind        TopologyKind `mapstructure:"kind" json:"kind"`
	NumHosts    int          `mapstructure:"num_hosts" json:"num_hosts,omitempty"`
	SwitchRadix int          `mapstructure:"switch_radix" json:"switch_radix,omitempty"`
	Capacity    float64      `mapstructure:"capacity" json:"capacity"`
}

// WorkloadInput is the serializable form of a workload.Params, loaded from a
// scenario file.
type WorkloadInput struct {
	PP           int     `mapstructure:"pp" json:"pp"`
	DP           int     `mapstructure:"dp" json:"dp"`
	TP           int     `mapstructure:"tp" json:"tp"`
	Microbatches int     `mapstructure:"microbatches" json:"microbatches"`
	FwdCompTime  float64 `mapstructure:"fwd_comp_time" json:"fwd_comp_time"`
	BwdCompTime  float64 `mapstructure:"bwd_comp_time" json:"bwd_comp_time"`
	FwdTPSize    float64 `mapstructure:"fwd_tp_size" json:"fwd_tp_size"`
	BwdTPSize    float64 `mapstructure:"bwd_tp_size" json:"bwd_tp_size"`
	FwdPPSize    float64 `mapstructure:"fwd_pp_size" json:"fwd_pp_size"`
	BwdPPSize    float64 `mapstructure:"bwd_pp_size" json:"bwd_pp_size"`
	DPSize       float64 `mapstructure:"dp_size" json:"dp_size"`
}

// JobStatus tracks a SimulationRequest through the queue/run lifecycle.
type JobStatus int

const (
	JobStatusPending JobStatus = iota
	JobStatusRunning
	JobStatusCompleted
	JobStatusFailed
)

func (s JobStatus) String() string {
	switch s {
	case JobStatusPending:
		return "pending"
	case JobStatusRunning:
		return "running"
	case JobStatusCompleted:
		return "completed"
	case JobStatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SimulationRequest is a named, versioned bundle of a TopologyInput and a
// WorkloadInput plus a routing seed: the unit of work the queue daemon drains
// and the repository layer persists as a SimulationRun once it completes.
type SimulationRequest struct {
	ID           int64         `gorm:"primaryKey;autoIncrement" json:"id"`
	RequestUUID  string        `gorm:"column:request_uuid;uniqueIndex;size:64" json:"request_uuid"`
	Name         string        `gorm:"column:name;size:255" json:"name"`
	Topology     TopologyInput `gorm:"-" json:"topology"`
	Workload     WorkloadInput `gorm:"-" json:"workload"`
	RoutingSeed  int64         `gorm:"column:routing_seed" json:"routing_seed"`
	Detailed     bool          `gorm:"column:detailed" json:"detailed"`
	Priority     int           `gorm:"column:priority" json:"priority"`
	Status       JobStatus     `gorm:"column:status" json:"status"`
	StatusInfo   string        `gorm:"column:status_info" json:"status_info,omitempty"`
	ResultFile   string        `gorm:"column:result_file;size:512" json:"result_file,omitempty"`
	UserName     string        `gorm:"column:user_name;size:128" json:"user_name,omitempty"`
	COSBucket    string        `gorm:"column:cos_bucket;size:128" json:"cos_bucket,omitempty"`
	CreateTime   time.Time     `gorm:"column:create_time;autoCreateTime" json:"create_time"`
	BeginTime    *time.Time    `gorm:"column:begin_time" json:"begin_time,omitempty"`
	EndTime      *time.Time    `gorm:"column:end_time" json:"end_time,omitempty"`
}

// TableName pins the gorm table name regardless of struct renames.
func (SimulationRequest) TableName() string { return "simulation_requests" }

// NewSimulationRequest builds a SimulationRequest in JobStatusPending with the
// given uuid, topology and workload inputs.
func NewSimulationRequest(uuid string, topo TopologyInput, wl WorkloadInput) *SimulationRequest {
	return &SimulationRequest{
		RequestUUID: uuid,
		Topology:    topo,
		Workload:    wl,
		Status:      JobStatusPending,
	}
}

// IsHighPriority reports whether this request should jump the scheduler's
// queue ahead of default-priority work.
func (r *SimulationRequest) IsHighPriority() bool {
	return r.Priority > 0
}
