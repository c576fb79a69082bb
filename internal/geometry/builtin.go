package geometry

// Builtin attribute names shared by constitutions, the animator and the solver.
const (
	Topo                  = "topo"
	Position              = "position"
	Velocity              = "velocity"
	Transform             = "transform"
	IsFixed               = "is_fixed"
	IsConstrained         = "is_constrained"
	IsDynamic             = "is_dynamic"
	AimPosition           = "aim_position"
	AimTransform          = "aim_transform"
	ExternalKinetic       = "external_kinetic"
	ExternalForce         = "external_force"
	Gravity               = "gravity"
	IsSurf                = "is_surf"
	Orient                = "orient"
	Thickness             = "thickness"
	MassDensity           = "mass_density"
	Mass                  = "mass"
	Volume                = "volume"
	DHat                  = "d_hat"
	ConstitutionUID       = "constitution_uid"
	ExtraConstitutionUIDs = "extra_constitution_uids"
	ContactElementID      = "contact_element_id"
	SubsceneElementID     = "subscene_element_id"

	Kappa              = "kappa"
	Mu                 = "mu"
	Lambda             = "lambda"
	BendingStiffness   = "bending_stiffness"
	ConstraintStrength = "constraint_strength"
	StrengthRatio      = "strength_ratio"
	MotorAxis          = "motor_axis"
	MotorRotVel        = "motor_rot_vel"

	LeftGeoID   = "l_geo_id"
	RightGeoID  = "r_geo_id"
	LeftInstID  = "l_inst_id"
	RightInstID = "r_inst_id"

	ImplicitNormal = "N"
	ImplicitPoint  = "P"
)

// Custom collection names used by articulation constraints.
const (
	JointCollection      = "joint"
	JointJointCollection = "joint_joint"
)
