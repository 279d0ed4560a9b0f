package image

// UpdateMetadataRequest is the PATCH body for filling description/tags.
// Nil fields are left untouched.
type UpdateMetadataRequest struct {
	Description *string   `json:"description" validate:"omitempty,max=2000"`
	Tags        *[]string `json:"tags" validate:"omitempty,max=20,dive,required,max=64,tag"`
}

// MergeSnapshotRequest carries an external index snapshot to merge in.
type MergeSnapshotRequest struct {
	Snapshot []ImageRecord `json:"snapshot" validate:"required"`
}
