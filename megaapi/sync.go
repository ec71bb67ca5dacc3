package megaapi

type SyncRunState int

const (
	SyncPending SyncRunState = iota
	SyncLoading
	SyncRunning
	SyncPaused
	SyncSuspended
	SyncDisabled
)

func (s SyncRunState) String() string {
	switch s {
	case SyncPending:
		return "Pending"
	case SyncLoading:
		return "Loading"
	case SyncRunning:
		return "Running"
	case SyncPaused:
		return "Paused"
	case SyncSuspended:
		return "Suspended"
	case SyncDisabled:
		return "Disabled"
	}
	return "Unknown"
}

type SyncType int

const (
	SyncTwoWay SyncType = iota
	SyncBackup
)

type Sync struct {
	BackupID     Handle       `json:"backupId"`
	Name         string       `json:"name"`
	LocalPath    string       `json:"localPath"`
	RemoteHandle Handle       `json:"remoteHandle"`
	RemotePath   string       `json:"remotePath"`
	RunState     SyncRunState `json:"runState"`
	Type         SyncType     `json:"type"`
	Error        ErrorCode    `json:"error"`
}

type StallReason int

const (
	StallNoReason StallReason = iota
	StallFileIssue
	StallMoveOrRenameCannotOccur
	StallDeleteOrMoveWaitingOnScanning
	StallDeleteWaitingOnMoves
	StallUploadIssue
	StallDownloadIssue
	StallCannotCreateFolder
	StallCannotPerformDeletion
	StallSyncItemExceedsSupportedTreeDepth
	StallFolderMatchedAgainstFile
	StallLocalAndRemoteChangedSinceLastSyncedStateUserMustChoose
	StallLocalAndRemotePreviouslyUnsyncedDifferUserMustChoose
	StallNamesWouldClashWhenSynced
)

type PathProblem int

const (
	PathProblemNone PathProblem = iota
	PathProblemFileChangingFrequently
	PathProblemIgnoreRulesUnknown
	PathProblemDetectedHardLink
	PathProblemDetectedSymlink
	PathProblemDetectedSpecialFile
	PathProblemDifferentFileOrFolderIsAlreadyPresent
	PathProblemParentFolderDoesNotExist
	PathProblemFilesystemErrorDuringOperation
	PathProblemNameTooLongForFilesystem
	PathProblemCannotFingerprintFile
	PathProblemDestinationPathInUnresolvedArea
	PathProblemMACVerificationFailure
	PathProblemDeletedOrMovedByUser
	PathProblemFileFolderDeletedByUser
	PathProblemMoveToDebrisFolderFailed
	PathProblemIgnoreFileMalformed
	PathProblemFilesystemErrorListingFolder
	PathProblemWaitingForScanningToComplete
	PathProblemWaitingForAnotherMoveToComplete
	PathProblemSourceWasMovedElsewhere
	PathProblemFilesystemCannotStoreThisName
	PathProblemCloudNodeInvalidFingerprint
	PathProblemCloudNodeIsBlocked
	PathProblemPutnodeDeferredByController
	PathProblemPutnodeCompletionDeferredByController
	PathProblemPutnodeCompletionPending
	PathProblemUploadDeferredByController
	PathProblemDetectedNestedMount
)

type StallPath struct {
	Path    string      `json:"path"`
	Problem PathProblem `json:"problem"`
}

// SyncStall describes something the sync engine cannot resolve on its own.
type SyncStall struct {
	SyncID          Handle      `json:"syncId"`
	Reason          StallReason `json:"reason"`
	DetectedOnCloud bool        `json:"detectedOnCloud"`
	IsImmediate     bool        `json:"isImmediate"`
	CloudPaths      []StallPath `json:"cloudPaths"`
	LocalPaths      []StallPath `json:"localPaths"`
}

// Backup is a scheduled copy of a local folder into the cloud.
type Backup struct {
	Tag          int    `json:"tag"`
	LocalPath    string `json:"localPath"`
	RemoteHandle Handle `json:"remoteHandle"`
	RemotePath   string `json:"remotePath"`
	Period       int64  `json:"period"`
	CronPeriod   string `json:"cronPeriod"`
	NumBackups   int    `json:"numBackups"`
	State        int    `json:"state"`
	NextStart    int64  `json:"nextStart"`
}

const (
	BackupStateNotInitialized = iota
	BackupStateActive
	BackupStateOngoing
	BackupStateSkipping
	BackupStateRemovingExceeding
	BackupStateFailed
)
