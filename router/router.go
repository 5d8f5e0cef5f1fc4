// Package router decides which printer a job goes to, applies
// primary-to-fallback substitution when the primary is unreachable, and
// splits kitchen tickets into per-station tickets by item category.
package router

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"posprint/queue"
)

// PrinterStatusProvider is the capability the orchestrator implements so
// the Router can consult liveness without owning the status cache.
type PrinterStatusProvider interface {
	// IsAvailable reports whether printerID is online or busy. When no
	// provider is configured the Router assumes every printer is available.
	IsAvailable(printerID string) bool
}

// RouteResult is the outcome of routing a single job.
type RouteResult struct {
	PrinterID      string
	UsedFallback   bool
	FallbackReason string
}

// Item is one line of a kitchen ticket, the minimal shape routing needs
// to group by category; the renderer's ticket type carries the full line
// (price, quantity, notes) but routing only looks at Category.
type Item struct {
	Category string `json:"category"`
}

// KitchenTicketData is the structured variant of queue.JobData that
// SplitOrderByCategory understands.
type KitchenTicketData struct {
	Items []Item `json:"items"`
}

// SplitJob is one category-destination ticket produced by splitting.
type SplitJob struct {
	Job       queue.PrintJob
	PrinterID string
}

// SplitResult is the outcome of SplitOrderByCategory. UnroutedItems
// holds the original item payloads, whatever their JSON shape, that no
// category route or default target could absorb; every input item lands
// in exactly one split or in UnroutedItems.
type SplitResult struct {
	Splits        []SplitJob
	UnroutedItems []interface{}
}

// RoutingDocument is the shape routing tables take in a settings backup.
type RoutingDocument struct {
	Routing          map[string]string `json:"routing"`
	CategoryRouting  map[string]string `json:"categoryRouting"`
	Fallbacks        map[string]string `json:"fallbacks"`
	DefaultPrinterID string            `json:"defaultPrinterId,omitempty"`
}

// Router holds the in-memory routing tables: job type to printer,
// lowercased category to printer, primary to fallback, and the default.
type Router struct {
	mu sync.RWMutex

	jobTypeRouting   map[queue.JobType]string
	categoryRouting  map[string]string
	fallback         map[string]string
	defaultPrinterID string

	statusProvider PrinterStatusProvider
}

// New creates an empty Router. SetStatusProvider should be called once
// the Orchestrator is constructed; until then every printer is treated
// as available.
func New() *Router {
	return &Router{
		jobTypeRouting:  make(map[queue.JobType]string),
		categoryRouting: make(map[string]string),
		fallback:        make(map[string]string),
	}
}

// SetStatusProvider wires the capability the Orchestrator implements.
func (r *Router) SetStatusProvider(p PrinterStatusProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statusProvider = p
}

// SetJobTypeRoute registers the printer for a job type.
func (r *Router) SetJobTypeRoute(jobType queue.JobType, printerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobTypeRouting[jobType] = printerID
}

// SetCategoryRoute registers the printer for a lowercased category.
func (r *Router) SetCategoryRoute(category, printerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.categoryRouting[strings.ToLower(category)] = printerID
}

// SetFallback registers printerID as the fallback for primaryID.
func (r *Router) SetFallback(primaryID, fallbackID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback[primaryID] = fallbackID
}

// SetDefaultPrinter sets the catch-all printer used when no job-type
// route exists.
func (r *Router) SetDefaultPrinter(printerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultPrinterID = printerID
}

// ClearPrinter removes printerID from every table it appears in: as a
// job-type target, a category target, a fallback source or target, or
// the default. Used when a printer is removed from the catalog.
func (r *Router) ClearPrinter(printerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for jt, id := range r.jobTypeRouting {
		if id == printerID {
			delete(r.jobTypeRouting, jt)
		}
	}
	for cat, id := range r.categoryRouting {
		if id == printerID {
			delete(r.categoryRouting, cat)
		}
	}
	delete(r.fallback, printerID)
	for primary, fb := range r.fallback {
		if fb == printerID {
			delete(r.fallback, primary)
		}
	}
	if r.defaultPrinterID == printerID {
		r.defaultPrinterID = ""
	}
}

func (r *Router) isAvailable(printerID string) bool {
	if r.statusProvider == nil {
		return true
	}
	return r.statusProvider.IsAvailable(printerID)
}

// RouteJob resolves the target printer for a single job: the job-type
// route first, the default printer next, then the fallback table if the
// chosen target is down.
func (r *Router) RouteJob(job queue.PrintJob) (RouteResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.routeJobLocked(job.Type)
}

func (r *Router) routeJobLocked(jobType queue.JobType) (RouteResult, error) {
	target, ok := r.jobTypeRouting[jobType]
	if !ok || target == "" {
		target = r.defaultPrinterID
	}
	if target == "" {
		return RouteResult{}, fmt.Errorf("no printer configured for job type %q", jobType)
	}

	if r.isAvailable(target) {
		return RouteResult{PrinterID: target}, nil
	}

	if fallback, ok := r.fallback[target]; ok && fallback != "" && r.isAvailable(fallback) {
		return RouteResult{
			PrinterID:      fallback,
			UsedFallback:   true,
			FallbackReason: fmt.Sprintf("Primary printer %s is offline", target),
		}, nil
	}

	// All candidates down (or no fallback configured): queue against the
	// primary and let it drain once the printer recovers. No reason is
	// attached when nothing was configured to fall back to.
	result := RouteResult{PrinterID: target}
	if fallback, ok := r.fallback[target]; ok && fallback != "" {
		result.FallbackReason = fmt.Sprintf("Fallback printer %s is also unavailable", fallback)
	}
	return result, nil
}

// RouteJobWithSplitting composes RouteJob with SplitOrderByCategory: for
// kitchen tickets with category data it returns one split job per
// category destination instead of a single target.
func (r *Router) RouteJobWithSplitting(job queue.PrintJob) ([]SplitJob, []interface{}, error) {
	if job.Type != queue.JobKitchen || job.Data.IsRaw {
		result, err := r.RouteJob(job)
		if err != nil {
			return nil, nil, err
		}
		return []SplitJob{{Job: job, PrinterID: result.PrinterID}}, nil, nil
	}

	split, err := r.SplitOrderByCategory(job)
	if err != nil {
		return nil, nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	resolved := make([]SplitJob, 0, len(split.Splits))
	for _, sj := range split.Splits {
		// The targetPrinterId recorded in each split's metadata stays
		// authoritative; fallback is applied per split target.
		target := sj.PrinterID
		if target == "" {
			result, err := r.routeJobLocked(sj.Job.Type)
			if err != nil {
				return nil, nil, err
			}
			sj.PrinterID = result.PrinterID
			resolved = append(resolved, sj)
			continue
		}
		if r.isAvailable(target) {
			resolved = append(resolved, sj)
			continue
		}
		if fb, ok := r.fallback[target]; ok && fb != "" && r.isAvailable(fb) {
			if sj.Job.Metadata == nil {
				sj.Job.Metadata = make(map[string]interface{}, 2)
			}
			sj.Job.Metadata["usedFallback"] = true
			sj.Job.Metadata["fallbackReason"] = fmt.Sprintf("Primary printer %s is offline", target)
			sj.PrinterID = fb
		}
		resolved = append(resolved, sj)
	}
	return resolved, split.UnroutedItems, nil
}

// SplitOrderByCategory rewrites one kitchen ticket into several, one per
// category destination. Items whose category has no route land on the
// kitchen default target when one exists, otherwise they are returned as
// UnroutedItems. The item payloads are carried through verbatim so split
// tickets keep every field the submitter sent, not just the category.
func (r *Router) SplitOrderByCategory(job queue.PrintJob) (SplitResult, error) {
	if job.Type != queue.JobKitchen {
		return SplitResult{}, fmt.Errorf("splitOrderByCategory only applies to kitchen_ticket jobs")
	}
	if job.Data.IsRaw {
		return SplitResult{}, fmt.Errorf("splitOrderByCategory requires structured kitchen ticket data")
	}

	var ticket map[string]interface{}
	if err := json.Unmarshal(job.Data.Structured, &ticket); err != nil {
		return SplitResult{}, fmt.Errorf("decoding kitchen ticket data: %w", err)
	}

	r.mu.RLock()
	categoryRouting := make(map[string]string, len(r.categoryRouting))
	for k, v := range r.categoryRouting {
		categoryRouting[k] = v
	}
	defaultTarget := r.jobTypeRouting[queue.JobKitchen]
	if defaultTarget == "" {
		defaultTarget = r.defaultPrinterID
	}
	r.mu.RUnlock()

	if len(categoryRouting) == 0 {
		return SplitResult{
			Splits: []SplitJob{{Job: job, PrinterID: defaultTarget}},
		}, nil
	}

	rawItems, _ := ticket["items"].([]interface{})
	byCategory := make(map[string][]interface{})
	var order []string
	var defaultBucket []interface{}
	var unrouted []interface{}

	for _, raw := range rawItems {
		cat := ""
		if itemMap, ok := raw.(map[string]interface{}); ok {
			if c, ok := itemMap["category"].(string); ok {
				cat = strings.ToLower(strings.TrimSpace(c))
			}
		}
		if _, routed := categoryRouting[cat]; cat == "" || !routed {
			if defaultTarget != "" {
				defaultBucket = append(defaultBucket, raw)
			} else {
				unrouted = append(unrouted, raw)
			}
			continue
		}
		if _, seen := byCategory[cat]; !seen {
			order = append(order, cat)
		}
		byCategory[cat] = append(byCategory[cat], raw)
	}

	var splits []SplitJob
	for _, cat := range order {
		splits = append(splits, SplitJob{
			Job:       cloneKitchenJob(job, ticket, byCategory[cat], cat, categoryRouting[cat]),
			PrinterID: categoryRouting[cat],
		})
	}
	if len(defaultBucket) > 0 {
		splits = append(splits, SplitJob{
			Job:       cloneKitchenJob(job, ticket, defaultBucket, "default", defaultTarget),
			PrinterID: defaultTarget,
		})
	}

	return SplitResult{Splits: splits, UnroutedItems: unrouted}, nil
}

// cloneKitchenJob copies the original ticket document with its items
// replaced and its station set, tagging the metadata so the split can be
// traced back to the submission it came from.
func cloneKitchenJob(original queue.PrintJob, ticket map[string]interface{}, items []interface{}, station, targetPrinterID string) queue.PrintJob {
	doc := make(map[string]interface{}, len(ticket)+1)
	for k, v := range ticket {
		doc[k] = v
	}
	doc["items"] = items
	doc["station"] = station
	data, _ := json.Marshal(doc)

	meta := make(map[string]interface{}, len(original.Metadata)+3)
	for k, v := range original.Metadata {
		meta[k] = v
	}
	meta["originalJobId"] = original.ID
	meta["category"] = station
	meta["targetPrinterId"] = targetPrinterID

	return queue.PrintJob{
		Type:      original.Type,
		Data:      queue.JobData{IsRaw: false, Structured: data},
		Priority:  original.Priority,
		CreatedAt: original.CreatedAt,
		Metadata:  meta,
	}
}

// Export produces the routing document for a settings backup.
func (r *Router) Export() RoutingDocument {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc := RoutingDocument{
		Routing:          make(map[string]string, len(r.jobTypeRouting)),
		CategoryRouting:  make(map[string]string, len(r.categoryRouting)),
		Fallbacks:        make(map[string]string, len(r.fallback)),
		DefaultPrinterID: r.defaultPrinterID,
	}
	for jt, id := range r.jobTypeRouting {
		doc.Routing[string(jt)] = id
	}
	for cat, id := range r.categoryRouting {
		doc.CategoryRouting[cat] = id
	}
	for primary, fb := range r.fallback {
		doc.Fallbacks[primary] = fb
	}
	return doc
}

// Import overwrites only the sections present in doc.
func (r *Router) Import(doc RoutingDocument) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if doc.Routing != nil {
		r.jobTypeRouting = make(map[queue.JobType]string, len(doc.Routing))
		for jt, id := range doc.Routing {
			r.jobTypeRouting[queue.JobType(jt)] = id
		}
	}
	if doc.CategoryRouting != nil {
		r.categoryRouting = make(map[string]string, len(doc.CategoryRouting))
		for cat, id := range doc.CategoryRouting {
			r.categoryRouting[strings.ToLower(cat)] = id
		}
	}
	if doc.Fallbacks != nil {
		r.fallback = make(map[string]string, len(doc.Fallbacks))
		for primary, fb := range doc.Fallbacks {
			r.fallback[primary] = fb
		}
	}
	if doc.DefaultPrinterID != "" {
		r.defaultPrinterID = doc.DefaultPrinterID
	}
}
