package syncissues

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/cshum/megacmd/megaapi"
)

// CloudPrefix marks cloud paths so they are not mistaken for local ones.
const CloudPrefix = "<CLOUD>"

var reasonNames = map[megaapi.StallReason]string{
	megaapi.StallNoReason:                          "No reason",
	megaapi.StallFileIssue:                         "File issue",
	megaapi.StallMoveOrRenameCannotOccur:           "Move/Rename cannot occur",
	megaapi.StallDeleteOrMoveWaitingOnScanning:     "Delete waiting on scanning",
	megaapi.StallDeleteWaitingOnMoves:              "Delete waiting on move",
	megaapi.StallUploadIssue:                       "Upload issue",
	megaapi.StallDownloadIssue:                     "Download issue",
	megaapi.StallCannotCreateFolder:                "Cannot create folder",
	megaapi.StallCannotPerformDeletion:             "Cannot delete",
	megaapi.StallSyncItemExceedsSupportedTreeDepth: "Supported tree depth exceeded",
	megaapi.StallFolderMatchedAgainstFile:          "Folder matched against file",
	megaapi.StallLocalAndRemoteChangedSinceLastSyncedStateUserMustChoose: "Local and remote differ",
	megaapi.StallLocalAndRemotePreviouslyUnsyncedDifferUserMustChoose:    "Local and remote differ",
	megaapi.StallNamesWouldClashWhenSynced:                               "Name clash",
}

var reasonDescriptions = map[megaapi.StallReason]string{
	megaapi.StallFileIssue:                         "There is an issue with a file or folder that prevents it from being synced",
	megaapi.StallMoveOrRenameCannotOccur:           "A move or rename could not be replicated on the other side",
	megaapi.StallDeleteOrMoveWaitingOnScanning:     "A deletion or move is waiting for scanning to finish",
	megaapi.StallDeleteWaitingOnMoves:              "A deletion is waiting for other moves to complete",
	megaapi.StallUploadIssue:                       "A file could not be uploaded",
	megaapi.StallDownloadIssue:                     "A file could not be downloaded",
	megaapi.StallCannotCreateFolder:                "A folder could not be created",
	megaapi.StallCannotPerformDeletion:             "An item could not be deleted",
	megaapi.StallSyncItemExceedsSupportedTreeDepth: "The folder tree is deeper than what syncs support",
	megaapi.StallFolderMatchedAgainstFile:          "A folder on one side has the same name as a file on the other",
	megaapi.StallLocalAndRemoteChangedSinceLastSyncedStateUserMustChoose: "Both the local and the cloud item changed since the last sync. You must choose which one to keep",
	megaapi.StallLocalAndRemotePreviouslyUnsyncedDifferUserMustChoose:    "The local and the cloud item differ and were never synced. You must choose which one to keep",
	megaapi.StallNamesWouldClashWhenSynced:                               "Several items would end up with the same name once synced",
}

var pathProblemNames = map[megaapi.PathProblem]string{
	megaapi.PathProblemNone:                                  "None",
	megaapi.PathProblemFileChangingFrequently:                "File is changing frequently",
	megaapi.PathProblemIgnoreRulesUnknown:                    "Ignore rules are unknown",
	megaapi.PathProblemDetectedHardLink:                      "Hard link detected",
	megaapi.PathProblemDetectedSymlink:                       "Symlink detected",
	megaapi.PathProblemDetectedSpecialFile:                   "Special file detected",
	megaapi.PathProblemDifferentFileOrFolderIsAlreadyPresent: "A different file/folder is already present",
	megaapi.PathProblemParentFolderDoesNotExist:              "Parent folder does not exist",
	megaapi.PathProblemFilesystemErrorDuringOperation:        "There was a filesystem error during operation",
	megaapi.PathProblemNameTooLongForFilesystem:              "Name is too long for filesystem",
	megaapi.PathProblemCannotFingerprintFile:                 "File fingerprint cannot be obtained",
	megaapi.PathProblemDestinationPathInUnresolvedArea:       "Destination path (or one of its parents) is unresolved",
	megaapi.PathProblemMACVerificationFailure:                "Failure verifying MAC",
	megaapi.PathProblemDeletedOrMovedByUser:                  "Deleted or moved by user",
	megaapi.PathProblemFileFolderDeletedByUser:               "File or folder deleted by user",
	megaapi.PathProblemMoveToDebrisFolderFailed:              "Move to debris folder failed",
	megaapi.PathProblemIgnoreFileMalformed:                   "Ignore file is malformed",
	megaapi.PathProblemFilesystemErrorListingFolder:          "There was a filesystem error listing the folder",
	megaapi.PathProblemWaitingForScanningToComplete:          "Waiting for scanning to complete",
	megaapi.PathProblemWaitingForAnotherMoveToComplete:       "Waiting for another move to complete",
	megaapi.PathProblemSourceWasMovedElsewhere:               "The source was moved somewhere else",
	megaapi.PathProblemFilesystemCannotStoreThisName:         "The filesystem cannot store this name",
	megaapi.PathProblemCloudNodeInvalidFingerprint:           "Cloud node has invalid fingerprint",
	megaapi.PathProblemCloudNodeIsBlocked:                    "Cloud node is blocked",
	megaapi.PathProblemPutnodeDeferredByController:           "Putnode deferred by controller",
	megaapi.PathProblemPutnodeCompletionDeferredByController: "Putnode completion deferred by controller",
	megaapi.PathProblemPutnodeCompletionPending:              "Putnode completion pending",
	megaapi.PathProblemUploadDeferredByController:            "Upload deferred by controller",
	megaapi.PathProblemDetectedNestedMount:                   "Nested mount detected",
}

func ReasonString(r megaapi.StallReason) string {
	if s, ok := reasonNames[r]; ok {
		return s
	}
	return "<unsupported>"
}

func PathProblemString(p megaapi.PathProblem) string {
	if s, ok := pathProblemNames[p]; ok {
		return s
	}
	return "<unsupported>"
}

type SyncIssue struct {
	Number int
	ID     string
	Stall  megaapi.SyncStall
}

func newSyncIssue(number int, st megaapi.SyncStall) SyncIssue {
	return SyncIssue{Number: number, ID: issueID(st), Stall: st}
}

// issueID hashes what identifies a stall so the id survives refreshes of
// the list.
func issueID(st megaapi.SyncStall) string {
	h := sha256.New()
	h.Write([]byte(strconv.Itoa(int(st.Reason))))
	h.Write([]byte(st.SyncID.Base64()))
	for _, p := range st.CloudPaths {
		h.Write([]byte{0, 'c'})
		h.Write([]byte(p.Path))
	}
	for _, p := range st.LocalPaths {
		h.Write([]byte{0, 'l'})
		h.Write([]byte(p.Path))
	}
	return hex.EncodeToString(h.Sum(nil))[:8]
}

func (i SyncIssue) Reason() string {
	return ReasonString(i.Stall.Reason)
}

func (i SyncIssue) Description() string {
	return reasonDescriptions[i.Stall.Reason]
}

// MainPath is the first cloud path, or the first local one when the issue
// has no cloud path.
func (i SyncIssue) MainPath() string {
	if len(i.Stall.CloudPaths) > 0 && i.Stall.CloudPaths[0].Path != "" {
		return CloudPrefix + i.Stall.CloudPaths[0].Path
	}
	if len(i.Stall.LocalPaths) > 0 {
		return i.Stall.LocalPaths[0].Path
	}
	return ""
}

type PathProblem struct {
	IsCloud bool
	Path    string
	Problem string
}

func (i SyncIssue) PathProblems() []PathProblem {
	out := make([]PathProblem, 0, len(i.Stall.CloudPaths)+len(i.Stall.LocalPaths))
	for _, p := range i.Stall.LocalPaths {
		out = append(out, PathProblem{Path: p.Path, Problem: PathProblemString(p.Problem)})
	}
	for _, p := range i.Stall.CloudPaths {
		out = append(out, PathProblem{IsCloud: true, Path: p.Path, Problem: PathProblemString(p.Problem)})
	}
	return out
}

type SyncIssueList []SyncIssue

func newSyncIssueList(stalls []megaapi.SyncStall) SyncIssueList {
	list := make(SyncIssueList, len(stalls))
	for i, st := range stalls {
		list[i] = newSyncIssue(i+1, st)
	}
	return list
}

// Get finds an issue by id, or by its number in the list.
func (l SyncIssueList) Get(id string) (SyncIssue, bool) {
	for _, i := range l {
		if i.ID == id {
			return i, true
		}
	}
	if n, err := strconv.Atoi(id); err == nil && n >= 1 && n <= len(l) {
		return l[n-1], true
	}
	return SyncIssue{}, false
}

func (l SyncIssueList) CountForSync(syncID megaapi.Handle) int {
	n := 0
	for _, i := range l {
		if i.Stall.SyncID == syncID {
			n++
		}
	}
	return n
}
