package enum

type TrainingMode string

const (
	TrainingAutomatic TrainingMode = "automatic"
	TrainingManual    TrainingMode = "manual"
)

func (m TrainingMode) String() string {
	return string(m)
}

func (m TrainingMode) IsValid() bool {
	return m == TrainingAutomatic || m == TrainingManual
}

type ReputationBand string

const (
	BandExcellent ReputationBand = "excellent"
	BandGood      ReputationBand = "good"
	BandFair      ReputationBand = "fair"
	BandPoor      ReputationBand = "poor"
	BandCritical  ReputationBand = "critical"
)

func (b ReputationBand) String() string {
	return string(b)
}

type HealthStatus string

const (
	HealthExcellent HealthStatus = "excellent"
	HealthGood      HealthStatus = "good"
	HealthFair      HealthStatus = "fair"
	HealthPoor      HealthStatus = "poor"
)

func (s HealthStatus) String() string {
	return string(s)
}

type TrainingScopeKind string

const (
	ScopeAll    TrainingScopeKind = "all"
	ScopeTenant TrainingScopeKind = "tenant"
	ScopeDomain TrainingScopeKind = "domain"
)
