package cycle

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/quillhpc/qsched/internal/ifl"
	"github.com/quillhpc/qsched/internal/materialize"
	"github.com/quillhpc/qsched/internal/resource"
	"github.com/quillhpc/qsched/internal/uni"
)

// IFLSource is the production StatSource: it drives one stat-server,
// stat-queue(*), stat-node(*), selstat, stat-resv(*) round trip over an
// ifl.Client and decodes each reply's flat attribute-name/value strings
// into the typed materialize records a cycle needs (spec §4.C). Only the
// attribute keys named in the per-record parse functions below are
// recognized; anything else is carried by the server but not scheduled
// on, same as the reference scheduler ignoring attributes it has no use
// for.
type IFLSource struct {
	Client   *ifl.Client
	Registry *resource.Registry

	// SelStatAttrs names the job attributes requested by SelStat (spec
	// §4.C: "exactly the attributes needed"). Nil requests the default
	// set jobAttrs lists.
	SelStatAttrs []string
}

func NewIFLSource(client *ifl.Client, reg *resource.Registry) *IFLSource {
	return &IFLSource{Client: client, Registry: reg}
}

// Fetch implements StatSource.
func (s *IFLSource) Fetch(ctx context.Context) (Snapshot, error) {
	var snap Snapshot

	if err := s.Client.StatServer(); err != nil {
		return snap, fmt.Errorf("cycle: stat-server: %w", err)
	}
	serverReply, err := s.Client.RecvStatReply()
	if err != nil {
		return snap, fmt.Errorf("cycle: stat-server reply: %w", err)
	}
	snap.Server = parseServerRecord(serverReply, s.Registry)

	if err := s.Client.StatQueue(""); err != nil {
		return snap, fmt.Errorf("cycle: stat-queue: %w", err)
	}
	queueReply, err := s.Client.RecvStatReply()
	if err != nil {
		return snap, fmt.Errorf("cycle: stat-queue reply: %w", err)
	}
	for _, obj := range queueReply.Objects {
		snap.Queues = append(snap.Queues, parseQueueRecord(obj))
	}

	if err := s.Client.StatNode(""); err != nil {
		return snap, fmt.Errorf("cycle: stat-node: %w", err)
	}
	nodeReply, err := s.Client.RecvStatReply()
	if err != nil {
		return snap, fmt.Errorf("cycle: stat-node reply: %w", err)
	}
	for _, obj := range nodeReply.Objects {
		snap.Nodes = append(snap.Nodes, parseNodeRecord(obj))
	}

	attrs := s.SelStatAttrs
	if attrs == nil {
		attrs = jobAttrs
	}
	if err := s.Client.SelStat(attrs); err != nil {
		return snap, fmt.Errorf("cycle: selstat: %w", err)
	}
	jobReply, err := s.Client.RecvStatReply()
	if err != nil {
		return snap, fmt.Errorf("cycle: selstat reply: %w", err)
	}
	for _, obj := range jobReply.Objects {
		// A record whose select spec does not parse keeps a nil Select,
		// which materialize.Job rejects with a warning.
		rec, _ := parseJobRecord(obj, s.Registry)
		snap.Jobs = append(snap.Jobs, rec)
	}

	if err := s.Client.StatResv(""); err != nil {
		return snap, fmt.Errorf("cycle: stat-resv: %w", err)
	}
	resvReply, err := s.Client.RecvStatReply()
	if err != nil {
		return snap, fmt.Errorf("cycle: stat-resv reply: %w", err)
	}
	for _, obj := range resvReply.Objects {
		rec, err := parseResvRecord(obj, s.Registry)
		if err != nil {
			continue
		}
		snap.Resvs = append(snap.Resvs, rec)
	}

	return snap, nil
}

// jobAttrs is the default selstat attribute set: everything the job
// parser below recognizes.
var jobAttrs = []string{
	"job_state", "queue", "Job_Owner", "group_list", "project",
	"Resource_List.select", "Resource_List.place",
	"array", "array_id", "eligible_time", "accrue_type",
	"fairshare_tree_node", "release_nodes_on_stageout", "estimated.formula_value",
	"Priority", "checkpoint", "exec_vnode",
}

const timeLayout = time.RFC3339

func parseServerRecord(reply ifl.StatReply, reg *resource.Registry) materialize.ServerRecord {
	rec := materialize.ServerRecord{Time: time.Now(), Resources: map[string]resource.Value{}}
	if len(reply.Objects) == 0 {
		return rec
	}
	attrs := reply.Objects[0].Attrs
	if t, ok := attrs["server_time"]; ok {
		if parsed, err := time.Parse(timeLayout, t); err == nil {
			rec.Time = parsed
		}
	}
	for name, val := range attrs {
		const prefix = "resources_available."
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		resName := name[len(prefix):]
		if def, ok := reg.Lookup(resName); ok {
			if v, err := parseValue(def, val); err == nil {
				rec.Resources[resName] = v
			}
		}
	}
	return rec
}

func parseQueueRecord(obj ifl.StatObject) materialize.QueueRecord {
	a := obj.Attrs
	rec := materialize.QueueRecord{
		Name:          obj.Name,
		Started:       boolAttr(a, "started"),
		Enabled:       boolAttr(a, "enabled"),
		Resources:     map[string]resource.Value{},
		NodeAssoc:     a["Resource_List.nodect"] != "" || a["node_group_key"] != "",
		PrimeTimeOnly: boolAttr(a, "primetime_only"),
		DedicatedOnly: boolAttr(a, "dedicated_only"),
		IsResvQueue:   boolAttr(a, "is_resv_queue") || a["resv_id"] != "",
		ResvID:        a["resv_id"],
		Partition:     a["partition"],
	}
	rec.MaxRun = intAttrMap(a, "max_run")
	rec.MaxRunSoft = intAttrMap(a, "max_run_soft")
	rec.MaxQueued = intAttrMap(a, "max_queued")
	rec.MaxQueuedSoft = intAttrMap(a, "max_queued_soft")
	rec.UserMaxRun = intAttrMap(a, "max_run_res.user")
	rec.GroupMaxRun = intAttrMap(a, "max_run_res.group")
	rec.ProjectMaxRun = intAttrMap(a, "max_run_res.project")
	return rec
}

func boolAttr(a map[string]string, key string) bool {
	v := strings.ToLower(strings.TrimSpace(a[key]))
	return v == "true" || v == "t" || v == "1" || v == "y"
}

// intAttrMap reads a single scalar limit stored under "<prefix>" as the
// "" (overall) entry of the named limit family, which
// policy.CheckRunLimits applies to every entity's running count, mirroring the reference
// scheduler's flattened max_run/max_run_res.* attribute families closely
// enough for the per-entity maps materialize.limitSet expects without
// implementing the full PBS "[u:name=N]" list grammar.
func intAttrMap(a map[string]string, prefix string) map[string]int {
	v, ok := a[prefix]
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return nil
	}
	return map[string]int{"": n}
}

func parseNodeRecord(obj ifl.StatObject) materialize.NodeRecord {
	a := obj.Attrs
	rec := materialize.NodeRecord{
		Name:          obj.Name,
		Host:          a["Mom"],
		State:         parseNodeState(a["state"]),
		Resources:     map[string]resource.Value{},
		Indirect:      map[string]string{},
		Queue:         a["queue"],
		Partition:     a["partition"],
		PlacementPool: a["resources_available.placement_set"],
	}
	if rec.Host == "" {
		rec.Host = obj.Name
	}
	if rankStr, ok := a["rank"]; ok {
		if n, err := strconv.Atoi(rankStr); err == nil {
			rec.Rank = n
		}
	}
	const prefix = "resources_available."
	for name, val := range a {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		resName := name[len(prefix):]
		if strings.HasPrefix(val, "@") {
			rec.Indirect[resName] = strings.TrimPrefix(val, "@")
		}
	}
	return rec
}

// nodeStateTokens maps the comma-joined tokens PBS reports in a node's
// "state" attribute to uni.NodeState bits (spec §3).
var nodeStateTokens = map[string]uni.NodeState{
	"free":              uni.StateFree,
	"offline":           uni.StateOffline,
	"down":              uni.StateDown,
	"unknown":           uni.StateUnknown,
	"busy":               uni.StateBusy,
	"stale":             uni.StateStale,
	"maintenance":       uni.StateMaintenance,
	"sleeping":          uni.StateSleeping,
	"provisioning":      uni.StateProvisioning,
	"wait-provisioning": uni.StateWaitProvisioning,
	"job-exclusive":     uni.StateJobExclusive,
	"job-sharing":       uni.StateJobSharing,
	"resv-exclusive":    uni.StateResvExclusive,
}

func parseNodeState(s string) uni.NodeState {
	if s == "" {
		return uni.StateFree
	}
	var state uni.NodeState
	for _, tok := range strings.Split(s, ",") {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if bit, ok := nodeStateTokens[tok]; ok {
			state |= bit
		}
	}
	if state == 0 {
		return uni.StateFree
	}
	return state
}

// jobStateTokens maps the single-character job_state attribute value to
// uni.JobState bits (spec §3, original-source parity with PBS's Q/R/H/W/
// T/E/S/U/B/X codes).
var jobStateTokens = map[string]uni.JobState{
	"Q": uni.JobQueued,
	"R": uni.JobRunning,
	"H": uni.JobHeld,
	"W": uni.JobWaiting,
	"T": uni.JobTransit,
	"E": uni.JobExiting,
	"S": uni.JobSuspended,
	"U": uni.JobUserBusy,
	"B": uni.JobBegin,
	"X": uni.JobExpired,
}

func parseJobState(s string) uni.JobState {
	if bit, ok := jobStateTokens[strings.TrimSpace(s)]; ok {
		return bit
	}
	return uni.JobQueued
}

func parseJobRecord(obj ifl.StatObject, reg *resource.Registry) (materialize.JobRecord, error) {
	a := obj.Attrs
	rec := materialize.JobRecord{
		ID:      obj.Name,
		Owner:   a["Job_Owner"],
		Group:   firstOf(a["group_list"]),
		Project: a["project"],
		Queue:   a["queue"],
		State:     parseJobState(a["job_state"]),
		ExecVnode: a["exec_vnode"],
		IsArray:   boolAttr(a, "array"),
		ParentArrayID: a["array_id"],
		FairshareEntity: a["fairshare_tree_node"],
	}
	if t, ok := a["eligible_time"]; ok {
		if parsed, err := time.Parse(timeLayout, t); err == nil {
			rec.EligibleAt = parsed
		}
	}
	switch a["accrue_type"] {
	case "eligible":
		rec.Accrue = uni.AccrueEligible
	case "running":
		rec.Accrue = uni.AccrueRunning
	default:
		rec.Accrue = uni.AccrueIneligible
	}
	if v, ok := a["estimated.formula_value"]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			rec.FormulaValue = f
		}
	}
	if v, ok := a["Priority"]; ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			rec.PreemptPriority = n
		}
	}
	if boolAttr(a, "checkpoint") {
		rec.PreemptStatus |= preemptStatusCheckpointable
	}
	sel, err := parseSelectSpec(a["Resource_List.select"], reg)
	if err != nil {
		return rec, err
	}
	rec.Select = sel
	rec.Place = parsePlaceSpec(a["Resource_List.place"])
	return rec, nil
}

func firstOf(groupList string) string {
	if i := strings.IndexByte(groupList, ','); i >= 0 {
		return groupList[:i]
	}
	return groupList
}

func parseResvRecord(obj ifl.StatObject, reg *resource.Registry) (materialize.ResvRecord, error) {
	a := obj.Attrs
	rec := materialize.ResvRecord{
		ID:        obj.Name,
		Owner:     a["Reserve_Owner"],
		Recurrence: a["reserve_rrule"],
		Timezone:   a["reserve_timezone"],
		Partition:  a["partition"],
	}
	if start, ok := a["reserve_start"]; ok {
		if parsed, err := time.Parse(timeLayout, start); err == nil {
			rec.Start = parsed
		}
	}
	if end, ok := a["reserve_end"]; ok {
		if parsed, err := time.Parse(timeLayout, end); err == nil {
			rec.End = parsed
		}
	}
	if !rec.End.IsZero() && !rec.Start.IsZero() {
		rec.Duration = rec.End.Sub(rec.Start)
	}
	rec.State = parseResvState(a["reserve_state"])
	rec.Substate = parseResvSubstate(a["reserve_substate"])
	if n, err := strconv.Atoi(a["reserve_index"]); err == nil {
		rec.OccurrenceIndex = n
	}
	if n, err := strconv.Atoi(a["reserve_count"]); err == nil {
		rec.TotalOccurrences = n
	}
	if seq, ok := a["reserve_occurrence_execvnodes"]; ok && seq != "" {
		rec.ExecVnodeSeq = strings.Split(seq, ";")
	}
	if names, ok := a["resv_nodes"]; ok && names != "" {
		rec.ResvNodeNames = strings.Split(names, ",")
	}
	sel, err := parseSelectSpec(a["Resource_List.select"], reg)
	if err != nil {
		return rec, err
	}
	rec.Select = sel
	rec.Place = parsePlaceSpec(a["Resource_List.place"])
	return rec, nil
}

var resvStateTokens = map[string]uni.ResvState{
	"UNCONFIRMED":   uni.ResvUnconfirmed,
	"CONFIRMED":     uni.ResvConfirmed,
	"RUNNING":       uni.ResvRunning,
	"BEING_ALTERED": uni.ResvBeingAltered,
	"DELETING_JOBS": uni.ResvDeletingJobs,
	"DELETED":       uni.ResvDeleted,
}

func parseResvState(s string) uni.ResvState {
	if state, ok := resvStateTokens[strings.ToUpper(strings.TrimSpace(s))]; ok {
		return state
	}
	return uni.ResvUnconfirmed
}

var resvSubstateTokens = map[string]uni.ResvSubstate{
	"NORMAL":              uni.SubstateNormal,
	"DEGRADED":            uni.SubstateDegraded,
	"IN_CONFLICT":         uni.SubstateInConflict,
	"ALTERED_ORIG_VALUES": uni.SubstateAlteredOrigValues,
}

func parseResvSubstate(s string) uni.ResvSubstate {
	if sub, ok := resvSubstateTokens[strings.ToUpper(strings.TrimSpace(s))]; ok {
		return sub
	}
	return uni.SubstateNormal
}

// parseValue converts a raw attribute string into the Value shape def's
// Kind expects.
func parseValue(def *resource.Def, raw string) (resource.Value, error) {
	raw = strings.TrimSpace(raw)
	switch def.Kind {
	case resource.KindLong:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return resource.Value{}, err
		}
		return resource.Long(n), nil
	case resource.KindFloat:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return resource.Value{}, err
		}
		return resource.Float(n), nil
	case resource.KindSize:
		kb, err := resource.ParseSize(raw)
		if err != nil {
			return resource.Value{}, err
		}
		return resource.Size(kb), nil
	case resource.KindTime:
		sec, err := resource.ParseTime(raw)
		if err != nil {
			return resource.Value{}, err
		}
		return resource.Time(sec), nil
	case resource.KindStringArray:
		return resource.StringArray(strings.Split(raw, "+")), nil
	case resource.KindBoolean:
		switch strings.ToLower(raw) {
		case "true", "t", "1":
			return resource.Boolean(resource.TriTrue), nil
		case "false", "f", "0":
			return resource.Boolean(resource.TriFalse), nil
		default:
			return resource.Boolean(resource.TriEither), nil
		}
	default:
		return resource.String(raw), nil
	}
}

// parseSelectSpec parses a select spec string of the form
// "N:res=val:res=val+N:res=val..." (spec §3's select/chunk model; format
// confirmed against original_source's chunk.str_chunk raw-string field)
// into a *uni.SelSpec. An empty string yields a nil spec, which
// materialize.Job/Reservation rejects with a warning as having no select
// spec (spec §8).
func parseSelectSpec(raw string, reg *resource.Registry) (*uni.SelSpec, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	spec := &uni.SelSpec{}
	for seq, chunkStr := range strings.Split(raw, "+") {
		chunk, err := parseChunk(chunkStr, seq, reg)
		if err != nil {
			return nil, fmt.Errorf("ifl: select spec %q: %w", raw, err)
		}
		spec.Chunks = append(spec.Chunks, chunk)
	}
	spec.Recompute(reg)
	return spec, nil
}

func parseChunk(raw string, seq int, reg *resource.Registry) (uni.Chunk, error) {
	parts := strings.Split(raw, ":")
	if len(parts) == 0 {
		return uni.Chunk{}, fmt.Errorf("empty chunk")
	}
	count, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || count <= 0 {
		return uni.Chunk{}, fmt.Errorf("bad chunk count %q", parts[0])
	}
	chunk := uni.Chunk{Seq: seq, Count: count}
	for _, kv := range parts[1:] {
		name, val, ok := strings.Cut(kv, "=")
		if !ok {
			return uni.Chunk{}, fmt.Errorf("bad resource term %q", kv)
		}
		name = strings.TrimSpace(name)
		def, ok := reg.Lookup(name)
		if !ok {
			return uni.Chunk{}, fmt.Errorf("unknown resource %q", name)
		}
		v, err := parseValue(def, val)
		if err != nil {
			return uni.Chunk{}, fmt.Errorf("resource %q: %w", name, err)
		}
		chunk.Reqs = append(chunk.Reqs, resource.Req{Def: def, Value: v})
	}
	return chunk, nil
}

// parsePlaceSpec parses a place spec string of the form
// "arrangement[:sharing][:group=resource]" (spec §3) into a *uni.Place.
// An empty or unrecognized arrangement defaults to free/default sharing,
// matching the reference scheduler's behavior when a job omits
// Resource_List.place entirely.
func parsePlaceSpec(raw string) *uni.Place {
	place := &uni.Place{Arrangement: uni.ArrangeFree, Sharing: uni.SharingDefault}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return place
	}
	for _, tok := range strings.Split(raw, ":") {
		tok = strings.TrimSpace(tok)
		switch {
		case tok == "free":
			place.Arrangement = uni.ArrangeFree
		case tok == "pack":
			place.Arrangement = uni.ArrangePack
		case tok == "scatter":
			place.Arrangement = uni.ArrangeScatter
		case tok == "vscatter":
			place.Arrangement = uni.ArrangeVScatter
		case tok == "shared":
			place.Sharing = uni.SharingShared
		case tok == "excl":
			place.Sharing = uni.SharingExcl
		case tok == "exclhost":
			place.Sharing = uni.SharingExclHost
		case strings.HasPrefix(tok, "group="):
			place.Group = strings.TrimPrefix(tok, "group=")
		}
	}
	return place
}
