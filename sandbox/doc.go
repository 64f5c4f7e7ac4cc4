// Package sandbox runs untrusted code in ephemeral execution units.
//
// Each request is validated and turned into a SandboxSpec (image, argv and
// resource limits) by the SpecBuilder. The Orchestrator then creates one
// unit through a LifecycleClient, polls it until it reaches a terminal phase,
// an unrecoverable startup condition, or the wait budget, collects its logs
// and deletes it on every exit path. MapOutcome turns the result into the
// caller-facing status code and body.
//
// Two LifecycleClient backends are provided: KubernetesClient (one Pod per
// request, via client-go) and ContainerCLIClient (docker or podman, for
// local development). The Reaper removes units whose teardown never ran.
//
// Usage:
//
//	client, err := sandbox.NewLifecycleClient(logger, cfg, clientset)
//	builder, err := sandbox.NewSpecBuilderFromConfig(cfg)
//	svc := sandbox.NewService(logger, builder, sandbox.NewOrchestratorFromConfig(logger, client, cfg), cfg)
//	result := svc.Execute(ctx, sandbox.SandboxRequest{
//	    Language: "python",
//	    Code:     "print(1)",
//	})
package sandbox
